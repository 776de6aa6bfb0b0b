package modules

import (
	"context"
	"testing"

	"github.com/aukilabs/crowdnav/models"
	"github.com/stretchr/testify/require"
)

func TestWalk(t *testing.T) {
	tick := Tick{
		Agents: []models.Agent{
			{ID: 1},
			{ID: 2, Body: models.Body{IsStopped: true}},
			{ID: 3},
		},
	}

	t.Run("stopped agents are skipped", func(t *testing.T) {
		var ids []models.EntityID
		err := Walk(context.Background(), tick, func(a models.Agent) {
			ids = append(ids, a.ID)
		})
		require.NoError(t, err)
		require.Equal(t, []models.EntityID{1, 3}, ids)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Walk(ctx, tick, func(models.Agent) {
			t.Fatal("no agent should be walked")
		})
		require.ErrorIs(t, err, context.Canceled)
	})
}

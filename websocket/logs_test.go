package websocket

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/stretchr/testify/require"
)

func TestHandlerWithLogsIncCounter(t *testing.T) {
	h := HandlerWithLogs(&StreamHandler{}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test")
	require.Equal(t, 1, h.counter["test"])

	h.HandleFrameDrop(simulation.Frame{})
	require.Equal(t, 1, h.counter["dropped_frames"])
}

func TestHandlerWithLogsLogSummary(t *testing.T) {
	testClientID := "test-client"
	h := HandlerWithLogs(&StreamHandler{clientID: testClientID}, time.Second).(*handlerWithLogs)
	defer h.Close()

	h.incCounter("test-1")
	h.incCounter("test-1")
	h.incCounter("test-2")

	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		fmt.Fprint(&b, e)
	})

	h.logSummary()
	require.Empty(t, h.counter)

	logString := b.String()
	require.Contains(t, logString, `"test-1":2`)
	require.Contains(t, logString, `"test-2":1`)
	require.Contains(t, logString, fmt.Sprintf(`"%s":"%s"`, clientIDTag, testClientID))
	t.Log(b.String())
}

func TestHandlerWithLogsStartSummaryWorker(t *testing.T) {
	var wg sync.WaitGroup
	var once sync.Once

	var mutex sync.Mutex
	var b strings.Builder
	logs.SetInlineEncoder()
	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		fmt.Fprint(&b, e)
		once.Do(wg.Done)
	})

	wg.Add(1)
	h := HandlerWithLogs(&StreamHandler{}, time.Millisecond).(*handlerWithLogs)
	defer h.Close()

	// This is to avoid the test block since no summary is sent if no counter is
	// incremented.
	h.incCounter("test-1")

	wg.Wait()

	mutex.Lock()
	out := b.String()
	mutex.Unlock()

	require.NotEmpty(t, out)
	t.Log(out)
}

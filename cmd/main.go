package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/crowdnav/featureflag"
	crowdnavhttp "github.com/aukilabs/crowdnav/http"
	"github.com/aukilabs/crowdnav/models"
	"github.com/aukilabs/crowdnav/modules"
	"github.com/aukilabs/crowdnav/modules/avoidance"
	"github.com/aukilabs/crowdnav/modules/flock"
	"github.com/aukilabs/crowdnav/modules/sight"
	"github.com/aukilabs/crowdnav/simulation"
	"github.com/aukilabs/crowdnav/smoketest"
	"github.com/aukilabs/crowdnav/spatial"
	cwebsocket "github.com/aukilabs/crowdnav/websocket"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/golang/geo/r3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Crowdnav version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "crowdnav_info",
		Help:        "Crowdnav information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"CROWDNAV_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string        `cli:""        env:"CROWDNAV_ADMIN_ADDR"           help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"CROWDNAV_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"CROWDNAV_LOG_INDENT"           help:"Indent logs."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"CROWDNAV_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"CROWDNAV_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle diagnostics client will be disconnected."`
	FrameDuration      time.Duration `cli:",hidden" env:"CROWDNAV_FRAME_DURATION"       help:"The duration of a world tick."`
	Index              indexConfig   `cli:",hidden" env:"-"                             help:"Spatial index configuration."`
	World              worldConfig   `cli:",hidden" env:"-"                             help:"World configuration."`
	Events             eventsConfig  `cli:",hidden" env:"-"                             help:"Event pusher configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"CROWDNAV_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                             help:"Show version."`
	Help               bool          `cli:""        env:"-"                             help:"Show help."`
}

type indexConfig struct {
	Backend         string  `cli:""        env:"CROWDNAV_INDEX_BACKEND"          help:"Spatial index backend (tree|grid)."`
	Padding         float64 `cli:",hidden" env:"CROWDNAV_INDEX_PADDING"          help:"The margin added around agent bounds in the tree."`
	Prediction      float64 `cli:",hidden" env:"CROWDNAV_INDEX_PREDICTION"       help:"The displacement factor that enlarges reinserted tree bounds."`
	CellSize        float64 `cli:",hidden" env:"CROWDNAV_INDEX_CELL_SIZE"        help:"The size of a grid cell."`
	QueryChecks     int     `cli:",hidden" env:"CROWDNAV_INDEX_QUERY_CHECKS"     help:"The maximum number of candidates a grid nearest query checks."`
	InitialCapacity int     `cli:",hidden" env:"CROWDNAV_INDEX_INITIAL_CAPACITY" help:"The initial number of tracked agents."`
}

type worldConfig struct {
	Agents int     `cli:""        env:"CROWDNAV_WORLD_AGENTS" help:"The number of wandering agents spawned at start."`
	Extent float64 `cli:",hidden" env:"CROWDNAV_WORLD_EXTENT" help:"The size of the square area agents wander in."`
	Seed   int64   `cli:",hidden" env:"CROWDNAV_WORLD_SEED"   help:"The seed used to place agents. Zero picks a random one."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"CROWDNAV_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"CROWDNAV_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"CROWDNAV_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"CROWDNAV_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		LogLevel:           logs.InfoLevel.String(),
		LogSummaryInterval: time.Minute,
		ClientIdleTimeout:  time.Minute * 5,
		FrameDuration:      time.Second / 30,
		Index: indexConfig{
			Backend:         spatial.BackendTree,
			Padding:         0.5,
			Prediction:      2,
			CellSize:        4,
			InitialCapacity: 1024,
		},
		World: worldConfig{
			Agents: 500,
			Extent: 100,
		},
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Crowdnav server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "crowdnav",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	index, err := spatial.New(spatial.Config{
		Backend:         conf.Index.Backend,
		Padding:         conf.Index.Padding,
		Prediction:      conf.Index.Prediction,
		DisableRotation: featureFlags.IsSet(featureflag.FlagDisableTreeRotation),
		CellSize:        conf.Index.CellSize,
		QueryChecks:     conf.Index.QueryChecks,
		InitialCapacity: conf.Index.InitialCapacity,
	})
	if err != nil {
		logs.Fatal(errors.New("creating spatial index failed").Wrap(err))
	}
	index = spatial.IndexWithLogs(index, conf.LogSummaryInterval)
	index = spatial.IndexWithMetrics(index)

	var mods []modules.Module
	featureFlags.IfNotSet(featureflag.FlagDisableFlock, func() {
		mods = append(mods, flock.New(flock.DefaultConfig()))
	})
	featureFlags.IfNotSet(featureflag.FlagDisableAvoidance, func() {
		mods = append(mods, avoidance.New(avoidance.DefaultConfig()))
	})
	featureFlags.IfNotSet(featureflag.FlagDisableSight, func() {
		mods = append(mods, sight.New(1.6, 8))
	})

	seed := conf.World.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	world := simulation.NewWorld(simulation.Config{
		FrameDuration: conf.FrameDuration,
		Wander:        true,
		Extent:        conf.World.Extent,
		Seed:          seed,
	}, index, mods...)
	defer world.Close()

	if err := spawnAgents(world, conf.World, seed); err != nil {
		logs.Fatal(errors.New("spawning agents failed").Wrap(err))
	}

	go world.StartDispatchFrames(ctx)

	var service http.ServeMux
	service.Handle("/health", crowdnavhttp.HandleWithCORS(http.HandlerFunc(crowdnavhttp.HandleHealthCheck)))
	service.Handle("/version", crowdnavhttp.HandleWithCORS(crowdnavhttp.HandleVersion(version)))
	service.Handle("/stats", crowdnavhttp.HandleWithCORS(crowdnavhttp.HandleStats(world.ID, world)))
	service.Handle("/select", crowdnavhttp.HandleWithCORS(crowdnavhttp.HandleSelect(world)))

	readinessCheck := func() bool {
		return world.LastFrame().Number != 0
	}
	service.Handle("/ready", crowdnavhttp.HandleWithCORS(crowdnavhttp.HandleReadyCheck(readinessCheck)))

	featureFlags.IfNotSet(featureflag.FlagDisableSmokeTest, func() {
		service.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
			SendResult: func(ctx context.Context, res smoketest.Results) error {
				logs.WithTag("run_id", res.RunID).
					WithTag("success", res.Success).
					WithTag("leaves", res.Leaves).
					WithTag("operations", res.Operations).
					WithTag("cost", res.Cost).
					WithTag("depth", res.Depth).
					WithTag("duration", res.Duration).
					Info("smoke test completed")
				return nil
			},
		}))
	})

	service.Handle("/ws", crowdnavhttp.HandleWithCORS(websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			var h cwebsocket.Handler = &cwebsocket.StreamHandler{
				World:             world,
				ClientIdleTimeout: conf.ClientIdleTimeout,
			}
			h = cwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
			h = cwebsocket.HandlerWithMetrics(h)
			defer h.Close()

			cwebsocket.Handle(ctx, conn, h)
		},
	}))

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", crowdnavhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", crowdnavhttp.HandleReadyCheck(readinessCheck))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("world_id", world.ID).
		WithTag("backend", conf.Index.Backend).
		WithTag("agents", conf.World.Agents).
		WithTag("feature_flags", featureFlags.List()).
		Info("starting crowdnav server")

	crowdnavhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			crowdnavhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

// spawnAgents adds wandering agents at random positions. Agents are spread
// over three navigation layers.
func spawnAgents(world *simulation.World, conf worldConfig, seed int64) error {
	rnd := rand.New(rand.NewSource(seed))
	position := func() r3.Vector {
		return r3.Vector{
			X: rnd.Float64() * conf.Extent,
			Z: rnd.Float64() * conf.Extent,
		}
	}

	for i := 0; i < conf.Agents; i++ {
		_, err := world.AddAgent(models.Agent{
			Layers: models.NavigationLayers(1 << (i % 3)),
			Body: models.Body{
				Destination: position(),
				Speed:       1 + rnd.Float64(),
			},
			Shape: models.Shape{
				Type:   models.ShapeCylinder,
				Radius: 0.3 + rnd.Float64()*0.2,
				Height: 1.6 + rnd.Float64()*0.4,
			},
			Transform: models.Transform{
				Position: position(),
				Scale:    1,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func validateConfig(conf config) error {
	switch conf.Index.Backend {
	case spatial.BackendTree, spatial.BackendGrid:
	default:
		return errors.New("invalid index backend").
			WithTag("backend", conf.Index.Backend)
	}

	if conf.FrameDuration <= 0 {
		return errors.New("frame duration must be positive").
			WithTag("frame_duration", conf.FrameDuration)
	}

	if conf.World.Agents < 0 {
		return errors.New("agent count must not be negative").
			WithTag("agents", conf.World.Agents)
	}

	if conf.World.Extent <= 0 {
		return errors.New("world extent must be positive").
			WithTag("extent", conf.World.Extent)
	}

	if conf.Index.CellSize <= 0 {
		return errors.New("grid cell size must be positive").
			WithTag("cell_size", conf.Index.CellSize)
	}

	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"go.uber.org/zap"

	"github.com/greenhydro/ledger/app/services/ledger/handlers"
	"github.com/greenhydro/ledger/foundation/events"
	"github.com/greenhydro/ledger/foundation/ledger/difficulty"
	"github.com/greenhydro/ledger/foundation/ledger/mine"
	"github.com/greenhydro/ledger/foundation/ledger/state"
	"github.com/greenhydro/ledger/foundation/ledger/storage"
	"github.com/greenhydro/ledger/foundation/ledger/storage/disk"
	"github.com/greenhydro/ledger/foundation/ledger/storage/memory"
	"github.com/greenhydro/ledger/foundation/ledger/storage/sqlite"
	"github.com/greenhydro/ledger/foundation/ledger/worker"
	"github.com/greenhydro/ledger/foundation/logger"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("LEDGER")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:10s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			APIHost         string        `conf:"default:0.0.0.0:8080"`
		}
		Ledger struct {
			Backend           string        `conf:"default:sqlite"` // sqlite, disk or memory
			Path              string        `conf:"default:zledger/ledger.db"`
			DefaultDifficulty int           `conf:"default:2"`
			MaxDifficulty     int           `conf:"default:6"`
			TargetInterval    time.Duration `conf:"default:10s"`
			DifficultyWindow  int           `conf:"default:10"`
			MineMaxAttempts   uint64        `conf:"default:1000000"`
			AppendRetries     int           `conf:"default:3"`
			AuditInterval     time.Duration `conf:"default:1m"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "LEDGER"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	// =========================================================================
	// Ledger Support

	// Access the storage backend configured for the chain.
	strg, err := openStorage(cfg.Ledger.Backend, cfg.Ledger.Path)
	if err != nil {
		return fmt.Errorf("unable to open %q storage: %w", cfg.Ledger.Backend, err)
	}

	// The ledger packages accept a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
	}

	// The state value manages the chain and provides the append and read
	// APIs for application support. Append events flow to the websocket
	// clients through the publisher.
	st, err := state.New(state.Config{
		Storage: strg,
		Difficulty: difficulty.Config{
			Default: cfg.Ledger.DefaultDifficulty,
			Target:  cfg.Ledger.TargetInterval,
			Max:     cfg.Ledger.MaxDifficulty,
			Window:  cfg.Ledger.DifficultyWindow,
		},
		MinePolicy: mine.Policy{
			MaxAttempts:   cfg.Ledger.MineMaxAttempts,
			MinDifficulty: 1,
		},
		MaxAppendRetries: cfg.Ledger.AppendRetries,
		Publisher:        newEventPublisher(log, evts),
		EvHandler:        ev,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	// The worker package runs the periodic chain audit. The worker will
	// register itself with the state.
	worker.Run(st, cfg.Ledger.AuditInterval, ev)

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.
	debugMux := handlers.DebugMux(build, log, st)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start API Service

	log.Infow("startup", "status", "initializing V1 API support")

	// Construct the mux for the API calls.
	apiMux := handlers.APIMux(handlers.MuxConfig{
		Shutdown: shutdown,
		Log:      log,
		State:    st,
		Evts:     evts,
	})

	// Construct a server to service the requests against the mux.
	api := http.Server{
		Addr:         cfg.Web.APIHost,
		Handler:      apiMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "api router started", "host", api.Addr)
		serverErrors <- api.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		log.Infow("shutdown", "status", "shutdown api started")
		if err := api.Shutdown(ctx); err != nil {
			api.Close()
			return fmt.Errorf("could not stop api service gracefully: %w", err)
		}
	}

	return nil
}

// openStorage constructs the storage backend selected by configuration.
func openStorage(backend string, path string) (storage.Storage, error) {
	switch backend {
	case "sqlite":
		return sqlite.New(path)
	case "disk":
		return disk.New(path)
	case "memory":
		return memory.New()
	}

	return nil, fmt.Errorf("unknown backend %q", backend)
}

// =============================================================================

// eventPublisher delivers append events to the websocket clients. The state
// package depends only on the publishing behavior, not on this transport.
type eventPublisher struct {
	log  *zap.SugaredLogger
	evts *events.Events
}

func newEventPublisher(log *zap.SugaredLogger, evts *events.Events) *eventPublisher {
	return &eventPublisher{log: log, evts: evts}
}

// PublishBlockAppended implements the state.Publisher interface.
func (ep *eventPublisher) PublishBlockAppended(event state.BlockEvent) {
	data, err := json.Marshal(struct {
		Kind string           `json:"kind"`
		Data state.BlockEvent `json:"data"`
	}{
		Kind: "new_block",
		Data: event,
	})
	if err != nil {
		ep.log.Errorw("publish", "ERROR", err)
		return
	}

	ep.evts.Send(data)
}

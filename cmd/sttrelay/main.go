// Command sttrelay runs the real-time speech transcription and translation
// relay: it authenticates websocket clients, streams their audio to an
// upstream speech provider, merges live tokens into per-session transcripts,
// and durably persists the result under quota enforcement.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/driver/postgres"

	"github.com/kbukum/sttrelay/internal/bootstrap"
	"github.com/kbukum/sttrelay/internal/config"
	"github.com/kbukum/sttrelay/internal/database"
	"github.com/kbukum/sttrelay/internal/gateway"
	"github.com/kbukum/sttrelay/internal/observability"
	"github.com/kbukum/sttrelay/internal/quota"
	"github.com/kbukum/sttrelay/internal/server"
	"github.com/kbukum/sttrelay/internal/sessionauth"
	"github.com/kbukum/sttrelay/internal/store"
	"github.com/kbukum/sttrelay/internal/writequeue"
)

const serviceName = "sttrelay"

func main() {
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp[*Config](&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap failed: %v\n", err)
		os.Exit(1)
	}

	dbComponent := database.NewComponent(cfg.Database, app.Logger).
		WithDriver(postgres.Open).
		WithAutoMigrate(store.Models()...)
	if err := app.RegisterComponent(dbComponent); err != nil {
		app.Logger.Fatal("register database component", map[string]interface{}{"error": err.Error()})
	}

	srv := server.New(cfg.Server, app.Logger)
	srv.ApplyDefaults(serviceName, app.Components.HealthAll)

	// The websocket route is registered now, before the server starts
	// listening, since gin's route tree isn't safe to mutate concurrently
	// with Serve. gw is filled in during the configure phase, once the
	// database component it depends on has started; until then the route
	// reports unavailable rather than panicking on a nil gateway.
	var gw *gateway.Gateway
	srv.GinEngine().GET("/ws", gin.WrapF(func(w http.ResponseWriter, r *http.Request) {
		if gw == nil {
			http.Error(w, "gateway not ready", http.StatusServiceUnavailable)
			return
		}
		gw.HandleConnection(w, r)
	}))

	serverComponent := server.NewComponent(srv)
	if err := app.RegisterComponent(serverComponent); err != nil {
		app.Logger.Fatal("register server component", map[string]interface{}{"error": err.Error()})
	}

	var tracerProvider *sdktrace.TracerProvider
	app.OnStart(func(ctx context.Context) error {
		tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig(cfg.Name))
		if err != nil {
			app.Logger.Warn("tracer init failed, continuing without tracing", map[string]interface{}{"error": err.Error()})
			return nil
		}
		tracerProvider = tp
		return nil
	})
	app.OnStop(func(ctx context.Context) error {
		if tracerProvider == nil {
			return nil
		}
		return tracerProvider.Shutdown(ctx)
	})

	var queue *writequeue.Queue

	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
		db := dbComponent.DB().GormDB

		auth, err := sessionauth.New(cfg.jwtConfig())
		if err != nil {
			return fmt.Errorf("session auth: %w", err)
		}

		quotaSvc := quota.New(db, a.Logger)
		transcriptions := store.NewTranscriptionStore(db)

		queue = writequeue.New(cfg.WriteQueue, a.Logger)
		queue.Start(ctx)

		gw = gateway.New(auth, quotaSvc, transcriptions, queue, cfg.Upstream, cfg.Gateway, a.Logger)

		a.Logger.Info("gateway wired", map[string]interface{}{
			"upstream_base_url": cfg.Upstream.BaseURL,
		})
		return nil
	})

	if err := app.Run(context.Background()); err != nil {
		app.Logger.Fatal("application run failed", map[string]interface{}{"error": err.Error()})
	}
	if queue != nil {
		queue.Flush(context.Background())
	}
}

// Command brainserver runs the control API as a long-lived process: plan
// generation, validation, execution, history, and plan-version endpoints
// over HTTP and WebSocket, plus background cache maintenance.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	core "github.com/aqa-systems/brain/internal/app/core/service"
	"github.com/aqa-systems/brain/internal/app/system"
	"github.com/aqa-systems/brain/internal/appwiring"
	"github.com/aqa-systems/brain/internal/controlapi"
	"github.com/aqa-systems/brain/internal/plancache"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (defaults to BRAIN_ADDR or :8080)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN for the embedded history/version-store backend (overrides DATABASE_URL; file/memory storage when empty)")
	runMigrations := flag.Bool("migrate", true, "apply embedded database migrations on startup (ignored when no DSN)")
	flag.Parse()

	bundle, err := appwiring.Build(appwiring.Options{DSN: *dsn, RunMigrations: *runMigrations})
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}
	defer bundle.Close()

	srv := &controlapi.Server{
		Generator:    bundle.Generator,
		Validator:    bundle.Validator,
		Orchestrator: bundle.Orchestrator,
		History:      bundle.History,
		Versions:     bundle.Versions,
		Workspace:    bundle.Workspace,
		CacheDir:     bundle.Config.CacheDir,
		HistoryDir:   bundle.Config.HistoryFileTreeDir,
	}

	listenAddr := bundle.Addr(*addr)
	apiService := controlapi.NewService(srv, listenAddr, bundle.Log)

	manager := system.NewManager()
	if bundle.Scheduler != nil {
		if err := manager.Register(cacheSweepService{scheduler: bundle.Scheduler}); err != nil {
			log.Fatalf("register cache sweeper: %v", err)
		}
	}
	if err := manager.Register(apiService); err != nil {
		log.Fatalf("register control api: %v", err)
	}

	rootCtx := context.Background()
	if err := manager.Start(rootCtx); err != nil {
		log.Fatalf("start services: %v", err)
	}
	bundle.Log.Infof("brainserver listening on %s", listenAddr)
	for _, d := range manager.Descriptors() {
		bundle.Log.WithField("domain", d.Domain).WithField("layer", string(d.Layer)).
			Infof("service up: %s capabilities=%v", d.Name, d.Capabilities)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}

// cacheSweepService adapts plancache.Scheduler to system.Service.
type cacheSweepService struct {
	scheduler *plancache.Scheduler
}

func (c cacheSweepService) Name() string { return "plancache-sweeper" }

func (c cacheSweepService) Start(ctx context.Context) error {
	c.scheduler.Start()
	return nil
}

func (c cacheSweepService) Stop(ctx context.Context) error {
	c.scheduler.Stop()
	return nil
}

func (c cacheSweepService) Descriptor() core.Descriptor {
	return core.Descriptor{Name: c.Name(), Domain: "plancache", Layer: core.LayerData}.
		WithCapabilities("ttl-sweep")
}

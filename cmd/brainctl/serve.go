package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aqa-systems/brain/internal/app/system"
	"github.com/aqa-systems/brain/internal/controlapi"
	"github.com/aqa-systems/brain/internal/plancache"
)

// cmdServe launches the same control API the brainserver binary runs, as a
// convenience for workflows that already invoke brainctl for everything
// else. It is not a separate implementation: both paths build their
// dependencies through appwiring and hand them to controlapi.NewService.
func cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "", "HTTP listen address (defaults to BRAIN_ADDR or :8080)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN for the embedded history/version-store backend")
	migrate := fs.Bool("migrate", true, "apply embedded database migrations on startup")
	if err := fs.Parse(args); err != nil {
		return usageError(err)
	}

	bundle, err := openBundle(*dsn, *migrate)
	if err != nil {
		return err
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
			return err
		}
	}
	if err := manager.Register(apiService); err != nil {
		return err
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	fmt.Printf("brainctl serve: listening on %s\n", listenAddr)
	for _, d := range manager.Descriptors() {
		fmt.Printf("  service up: %-24s domain=%-12s layer=%-8s capabilities=%v\n", d.Name, d.Domain, d.Layer, d.Capabilities)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return manager.Stop(shutdownCtx)
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

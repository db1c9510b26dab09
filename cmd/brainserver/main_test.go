package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aqa-systems/brain/internal/plancache"
)

func newTestScheduler(t *testing.T) *plancache.Scheduler {
	t.Helper()
	cache, err := plancache.New(plancache.Config{
		Dir:     filepath.Join(t.TempDir(), "cache"),
		Enabled: true,
	}, nil)
	if err != nil {
		t.Fatalf("plancache.New: %v", err)
	}
	sched, err := plancache.NewScheduler(cache, "@every 1h", nil)
	if err != nil {
		t.Fatalf("plancache.NewScheduler: %v", err)
	}
	return sched
}

func TestCacheSweepServiceLifecycle(t *testing.T) {
	svc := cacheSweepService{scheduler: newTestScheduler(t)}

	if svc.Name() != "plancache-sweeper" {
		t.Fatalf("unexpected name: %s", svc.Name())
	}

	desc := svc.Descriptor()
	if desc.Name != svc.Name() {
		t.Fatalf("descriptor name mismatch: %s", desc.Name)
	}
	if desc.Domain != "plancache" {
		t.Fatalf("unexpected domain: %s", desc.Domain)
	}

	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type pruningStore struct {
	memStore
	mu      sync.Mutex
	cutoffs []time.Time
}

func (p *pruningStore) PurgeRunsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 2, nil
}

func TestStartPruneScheduler(t *testing.T) {
	store := &pruningStore{}
	svc := NewService(nil, nil, ServiceConfig{Store: store})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.StartPruneScheduler(ctx, PruneConfig{Retention: time.Hour, CheckInterval: time.Hour})
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		store.mu.Lock()
		n := len(store.cutoffs)
		store.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("prune not run on start")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	cutoff := store.cutoffs[0]
	if age := time.Since(cutoff); age < time.Hour || age > time.Hour+time.Minute {
		t.Errorf("cutoff age = %v, want about 1h", age)
	}
}

func TestStartPruneScheduler_StoreWithoutPruning(t *testing.T) {
	svc := NewService(nil, nil, ServiceConfig{Store: &memStore{}})

	finished := make(chan struct{})
	go func() {
		svc.StartPruneScheduler(context.Background(), PruneConfig{})
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("scheduler kept running for a store that cannot prune")
	}
}

package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/colannotate/internal/human"
	"github.com/JonMunkholm/colannotate/internal/oracle"
)

// gatedOracle holds every call until gate is closed, then answers UNSURE.
type gatedOracle struct {
	started chan struct{}
	gate    chan struct{}
}

func newGatedOracle() *gatedOracle {
	return &gatedOracle{started: make(chan struct{}, 16), gate: make(chan struct{})}
}

func (g *gatedOracle) Ask(ctx context.Context, _ string, _ []oracle.Message) (string, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.gate:
		return Unsure, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedOracle) waitStarted(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-g.started:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d runs reached the oracle", i, n)
		}
	}
}

func gatedService(t *testing.T, slots int, maxWait time.Duration, cfg ServiceConfig) (*Service, *gatedOracle) {
	t.Helper()
	g := newGatedOracle()
	svc := NewService(NewEngine(g, human.Decline{}, Options{}), NewRunLimiter(slots, maxWait), cfg)
	return svc, g
}

func startOne(t *testing.T, svc *Service) string {
	t.Helper()
	tbl := mustFrame(t, []string{"x"}, map[string][]string{"x": {"1"}})
	id, err := svc.Start(context.Background(), tbl, testDataset, "x.csv")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return id
}

func TestNewRunLimiter_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		slots    int
		wantMax  int
		wantWait time.Duration
	}{
		{"zero falls back", 0, DefaultMaxConcurrentRuns, DefaultMaxWaitTime},
		{"negative falls back", -2, DefaultMaxConcurrentRuns, DefaultMaxWaitTime},
		{"explicit", 2, 2, DefaultMaxWaitTime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewRunLimiter(tt.slots, 0)
			st := l.Status()
			if st.MaxConcurrent != tt.wantMax || st.Available != tt.wantMax || st.Active != 0 {
				t.Errorf("Status() = %+v, want %d free slots", st, tt.wantMax)
			}
			if l.maxWait != tt.wantWait {
				t.Errorf("maxWait = %v, want %v", l.maxWait, tt.wantWait)
			}
		})
	}
}

func TestService_StartRejectsWhenSlotsTaken(t *testing.T) {
	svc, g := gatedService(t, 2, 20*time.Millisecond, ServiceConfig{})

	first, second := startOne(t, svc), startOne(t, svc)
	g.waitStarted(t, 2)

	tbl := mustFrame(t, []string{"y"}, map[string][]string{"y": {"2"}})
	if _, err := svc.Start(context.Background(), tbl, testDataset, "y.csv"); !errors.Is(err, ErrTooManyRuns) {
		t.Fatalf("Start() with full slots error = %v, want ErrTooManyRuns", err)
	}
	if st := svc.LimiterStatus(); st.Active != 2 || st.Available != 0 {
		t.Errorf("LimiterStatus() = %+v, want 2 active 0 available", st)
	}

	close(g.gate)
	for _, id := range []string{first, second} {
		if run := waitRun(t, svc, id); run.Status != StatusSucceeded {
			t.Errorf("run %s Status = %q, want succeeded (error %q)", id, run.Status, run.Error)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	id := startOne(t, svc)
	waitRun(t, svc, id)
}

func TestService_StartRespectsCallerContext(t *testing.T) {
	svc, g := gatedService(t, 1, time.Minute, ServiceConfig{})
	t.Cleanup(func() { close(g.gate) })

	startOne(t, svc)
	g.waitStarted(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tbl := mustFrame(t, []string{"y"}, map[string][]string{"y": {"2"}})
	if _, err := svc.Start(ctx, tbl, testDataset, "y.csv"); !errors.Is(err, context.Canceled) {
		t.Errorf("Start() error = %v, want context.Canceled", err)
	}
}

func TestService_DrainWaitsForActiveRun(t *testing.T) {
	svc, g := gatedService(t, 1, time.Second, ServiceConfig{})

	id := startOne(t, svc)
	g.waitStarted(t, 1)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := svc.Drain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain() during run error = %v, want DeadlineExceeded", err)
	}

	drained := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		drained <- svc.Drain(ctx)
	}()
	close(g.gate)

	if err := <-drained; err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	run, err := svc.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.Status != StatusSucceeded {
		t.Errorf("Status after drain = %q, want succeeded", run.Status)
	}
}

func TestService_PanicReleasesSlot(t *testing.T) {
	o := oracle.Func(func(context.Context, string, []oracle.Message) (string, error) {
		panic("oracle adapter bug")
	})
	svc := NewService(NewEngine(o, human.Decline{}, Options{}), NewRunLimiter(1, 50*time.Millisecond), ServiceConfig{})

	id := startOne(t, svc)
	run := waitRun(t, svc, id)
	if run.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "oracle adapter bug") {
		t.Errorf("Error = %q, want the panic value", run.Error)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if st := svc.LimiterStatus(); st.Active != 0 || st.Available != 1 {
		t.Errorf("LimiterStatus() after panic = %+v, want the slot back", st)
	}
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Relay/internal/registry"
)

// countingRefresher считает вызовы Refresh.
type countingRefresher struct {
	calls atomic.Int32
	err   error
	done  chan struct{}
}

func (r *countingRefresher) Refresh(ctx context.Context) (*registry.Report, error) {
	if r.calls.Add(1) == 1 && r.done != nil {
		close(r.done)
	}
	if r.err != nil {
		return nil, r.err
	}
	return &registry.Report{Total: 1, Available: 1}, nil
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 5m", false},
		{"@hourly", false},
		{"*/10 * * * *", false},
		{"0 3 * * 1", false},
		{"every five minutes", true},
		{"* * * *", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 1, 15, 10, 7, 0, 0, time.UTC)

	next, err := NextRun("*/10 * * * *", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2024, 1, 15, 10, 10, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}

	next, err = NextRun("@every 5m", from)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(from.Add(5 * time.Minute)) {
		t.Errorf("expected %v, got %v", from.Add(5*time.Minute), next)
	}
}

func TestNew_InvalidSchedule(t *testing.T) {
	_, err := New(Config{Refresher: &countingRefresher{}, Schedule: "not a schedule"})
	if err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestScheduler_StartRefreshesImmediately(t *testing.T) {
	refresher := &countingRefresher{done: make(chan struct{})}

	sched, err := New(Config{Refresher: refresher, Schedule: "@every 1h"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sched.Stop()

	select {
	case <-refresher.done:
	case <-time.After(2 * time.Second):
		t.Fatal("initial refresh did not run")
	}

	// Повторный Start ничего не делает
	if err := sched.Start(context.Background()); err != nil {
		t.Errorf("second start: %v", err)
	}
}

func TestScheduler_TickToleratesErrors(t *testing.T) {
	refresher := &countingRefresher{err: errors.New("catalog down")}

	sched, err := New(Config{Refresher: refresher})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sched.Tick(context.Background())
	sched.Tick(context.Background())

	if n := refresher.calls.Load(); n != 2 {
		t.Errorf("expected 2 refreshes, got %d", n)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	sched, err := New(Config{Refresher: &countingRefresher{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sched.Stop()
}

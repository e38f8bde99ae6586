package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNextHour(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			name: "mid hour",
			in:   time.Date(2025, time.March, 10, 12, 34, 56, 0, time.UTC),
			want: time.Date(2025, time.March, 10, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "exact top of hour rolls to the next",
			in:   time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC),
			want: time.Date(2025, time.March, 10, 13, 0, 0, 0, time.UTC),
		},
		{
			name: "crosses midnight",
			in:   time.Date(2025, time.March, 10, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, time.March, 11, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextHour(tt.in); !got.Equal(tt.want) {
				t.Errorf("NextHour(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

type countingReconciler struct{ n atomic.Int64 }

func (r *countingReconciler) Reconcile(context.Context, time.Time) { r.n.Add(1) }

func TestRunFiresCatchUpTickAndStops(t *testing.T) {
	rec := &countingReconciler{}
	s := New(rec, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for rec.n.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("catch-up tick never fired")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

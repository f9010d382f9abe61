package watch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/g960059/presencewatch/internal/locksource"
)

type fakeSetter struct {
	statuses []string
	errs     []error
	onCall   func(count int)
}

func (f *fakeSetter) SetStatus(ctx context.Context, status string) error {
	f.statuses = append(f.statuses, status)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if f.onCall != nil {
		f.onCall(len(f.statuses))
	}
	return err
}

func lockScript(events ...string) []string {
	lines := make([]string, 0, len(events)*2)
	for _, v := range events {
		lines = append(lines, "signal ... member=ActiveChanged", "   boolean "+v)
	}
	return lines
}

func TestLoopMapsLockEventsToStatuses(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setter := &fakeSetter{onCall: func(count int) {
		if count >= 3 {
			cancel()
		}
	}}
	src := &locksource.ScriptSource{Lines: lockScript("true", "true", "false")}

	loop := New(src, setter, nil).WithRestartDelay(time.Millisecond)
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	want := []string{"away", "away", "online"}
	if len(setter.statuses) < len(want) {
		t.Fatalf("expected at least %d updates, got %v", len(want), setter.statuses)
	}
	for i := range want {
		if setter.statuses[i] != want[i] {
			t.Fatalf("update %d: expected %q, got %q", i, want[i], setter.statuses[i])
		}
	}
}

func TestLoopRestartsMonitorAfterStreamEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	src := &locksource.ScriptSource{Lines: []string{"noise, no events"}}
	loop := New(src, &fakeSetter{}, nil).WithRestartDelay(time.Millisecond)
	if err := loop.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if src.Starts() < 2 {
		t.Fatalf("expected monitor restarted at least once, got %d starts", src.Starts())
	}
}

func TestLoopSwallowsStatusUpdateFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	setter := &fakeSetter{
		errs: []error{errors.New("api unreachable")},
		onCall: func(count int) {
			if count >= 2 {
				cancel()
			}
		},
	}
	src := &locksource.ScriptSource{Lines: lockScript("true", "false")}

	loop := New(src, setter, nil).WithRestartDelay(time.Millisecond)
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(setter.statuses) < 2 {
		t.Fatalf("expected loop to keep processing after a failure, got %v", setter.statuses)
	}
	if setter.statuses[1] != "online" {
		t.Fatalf("expected second update online, got %q", setter.statuses[1])
	}
}

func TestLoopStopsWhenContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &locksource.ScriptSource{Lines: lockScript("true")}
	loop := New(src, &fakeSetter{}, nil)
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if src.Starts() != 0 {
		t.Fatalf("expected no monitor start after cancellation, got %d", src.Starts())
	}
}

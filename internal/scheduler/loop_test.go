package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testLoop(s *Scheduler, cfg LoopConfig) *Loop {
	return NewLoop(s, cfg, testLogger())
}

func TestLoop_RunsToIdle(t *testing.T) {
	s, vm := newTestScheduler(t)
	mustRun(t, vm, `
		var finished = 0;
		function* worker(n) {
			for (let i = 0; i < n; i++) {
				requeue();
				yield i;
			}
			finished++;
		}
	`)
	for i := 1; i <= 3; i++ {
		spawn(t, s, vm, "worker", vm.ToValue(i))
	}

	l := testLoop(s, DefaultLoopConfig())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if n := mustRun(t, vm, "finished").ToInteger(); n != 3 {
		t.Errorf("finished = %d, want 3", n)
	}
	// 1+2+3 yields plus 3 completions.
	if l.Steps() != 9 {
		t.Errorf("Steps = %d, want 9", l.Steps())
	}
}

func TestLoop_WaitsForTokens(t *testing.T) {
	s, vm := newTestScheduler(t)
	mustRun(t, vm, `function* sleeper() { const v = yield; return v; }`)
	th := spawn(t, s, vm, "sleeper")

	// First step parks the thread; a background producer wakes it later.
	s.RunOnce()
	tok := s.Track()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Defer(func() {
			th.Push(vm.ToValue("late"))
			s.Schedule(Resume(th, 1))
		})
		tok.Release()
	}()

	cfg := DefaultLoopConfig()
	cfg.PollInterval = time.Second
	if err := testLoop(s, cfg).Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := th.Result(); got == nil || got.String() != "late" {
		t.Errorf("result = %v, want late", got)
	}
}

func TestLoop_MaxSteps(t *testing.T) {
	s, vm := newTestScheduler(t)
	mustRun(t, vm, `function* forever() { for (;;) { requeue(); yield; } }`)
	spawn(t, s, vm, "forever")

	cfg := DefaultLoopConfig()
	cfg.MaxSteps = 5
	l := testLoop(s, cfg)
	if err := l.Start(context.Background()); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("Start = %v, want ErrStepLimit", err)
	}
	if l.Steps() != 5 {
		t.Errorf("Steps = %d, want 5", l.Steps())
	}
}

func TestLoop_StopOnError(t *testing.T) {
	tests := []struct {
		name        string
		stopOnError bool
		wantErr     bool
	}{
		{"continue", false, false},
		{"stop", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, vm := newTestScheduler(t)
			mustRun(t, vm, `
				var after = false;
				function* bad() { throw new Error("bad"); }
				function* good() { after = true; }
			`)
			spawn(t, s, vm, "bad")
			spawn(t, s, vm, "good")

			cfg := DefaultLoopConfig()
			cfg.StopOnError = tt.stopOnError
			err := testLoop(s, cfg).Start(context.Background())

			var se *ScriptError
			if tt.wantErr != errors.As(err, &se) {
				t.Fatalf("Start = %v, wantErr %v", err, tt.wantErr)
			}
			if after := mustRun(t, vm, "after").ToBoolean(); after == tt.wantErr {
				t.Errorf("good thread ran = %v", after)
			}
		})
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	s, _ := newTestScheduler(t)
	tok := s.Track()
	defer tok.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := DefaultLoopConfig()
	cfg.PollInterval = 10 * time.Millisecond
	if err := testLoop(s, cfg).Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start = %v, want DeadlineExceeded", err)
	}
}

func TestLoop_Stop(t *testing.T) {
	s, _ := newTestScheduler(t)
	tok := s.Track()
	defer tok.Release()

	l := testLoop(s, DefaultLoopConfig())
	errCh := make(chan error, 1)
	go func() { errCh <- l.Start(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	l.Stop()
	l.Stop()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoop_StoppedScheduler(t *testing.T) {
	s, vm := newTestScheduler(t)
	th, _ := NewThread(mustRun(t, vm, `(function* () { yield; })()`), "")
	s.Schedule(Resume(th, 0))
	s.Stop()

	l := testLoop(s, DefaultLoopConfig())
	if err := l.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if l.Steps() != 0 {
		t.Errorf("Steps = %d, want 0", l.Steps())
	}
}

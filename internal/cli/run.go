package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/me/coloop/internal/bridge"
	"github.com/me/coloop/internal/config"
	"github.com/me/coloop/internal/journal"
	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/internal/server"
	"github.com/me/coloop/internal/tasklib"
	"github.com/me/coloop/pkg/model"
)

func newRunCmd() *cobra.Command {
	var (
		journalPath  string
		adminAddr    string
		runID        string
		maxSteps     int
		stopOnError  bool
		pollInterval time.Duration
		concurrency  int
		timeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Run a script until its scheduler is idle",
		Long: `Evaluates the script, then drives the scheduler one step at a time until
no continuations, ready threads or outstanding timers and offload jobs remain.

The script sees three globals: scheduler (runOnce, hasWork and the status
table), task (spawn, defer, requeue, wait, offload, current) and print.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("journal") {
				cfg.JournalPath = journalPath
			}
			if flags.Changed("admin") {
				cfg.AdminAddr = adminAddr
			}
			if flags.Changed("max-steps") {
				cfg.MaxSteps = maxSteps
			}
			if flags.Changed("stop-on-error") {
				cfg.StopOnError = stopOnError
			}
			if flags.Changed("poll-interval") {
				cfg.PollInterval = pollInterval
			}
			if flags.Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if runID == "" {
				runID = "run_" + uuid.New().String()[:8]
			}
			return runScript(ctx, cfg, args[0], runID, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&journalPath, "journal", "", "SQLite journal path (overrides config)")
	cmd.Flags().StringVar(&adminAddr, "admin", "", "Serve the admin API on this address while running")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (default: generated)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Stop after this many steps (0 = unlimited)")
	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "End the run at the first failed thread")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Idle poll interval while waiting on timers and jobs")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel offload jobs (0 = unlimited)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the run after this long (0 = no timeout)")

	return cmd
}

// runScript evaluates the script at path on a fresh VM and drives its
// scheduler to completion. Once BeginRun succeeds the journaled run always
// ends with a final state.
func runScript(ctx context.Context, cfg config.RunnerConfig, path, runID string, stdout, stderr io.Writer) (err error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	log := logger.With("run_id", runID)

	var (
		jrnl     journal.Journal
		recorder *journal.Recorder
	)
	opts := []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithRunID(runID),
		bridge.WithMaxCopyDepth(cfg.MaxCopyDepth),
	}
	if cfg.JournalPath != "" {
		sj, err := journal.NewSQLiteJournal(cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer sj.Close()
		if err := sj.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
		jrnl = sj
		recorder = journal.NewRecorder(sj, 0, logger)
		opts = append(opts, bridge.WithObserver(recorder))
	}

	vm := goja.New()
	s, err := bridge.SetupRuntime(vm, opts...)
	if err != nil {
		if recorder != nil {
			recorder.Close()
		}
		return err
	}

	var (
		lib   *tasklib.Library
		admin *server.Server
		begun bool
	)
	defer func() {
		if admin != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			admin.Shutdown(shutdownCtx)
			cancel()
		}
		bridge.DestroyRuntime(vm)
		if lib != nil {
			lib.Wait()
		}
		if recorder != nil {
			recorder.Close()
			if n := recorder.Failed(); n > 0 {
				log.Warn("journal dropped step records", "count", n)
			}
		}
		if begun {
			state, msg := model.RunStateCompleted, ""
			if err != nil {
				state, msg = model.RunStateFailed, err.Error()
			}
			// The run context may already be cancelled.
			if endErr := jrnl.EndRun(context.Background(), runID, state, msg); endErr != nil {
				log.Error("end run", "error", endErr)
			}
		}
		stats := s.Stats()
		fmt.Fprintf(stderr, "%s: %d steps, %d yields, %d failures\n", runID, stats.Steps, stats.Yields, stats.Failures)
	}()

	if err := bridge.Open(vm); err != nil {
		return err
	}
	if lib, err = tasklib.Open(s, tasklib.Config{Concurrency: cfg.Concurrency, Workers: builtinWorkers()}, logger); err != nil {
		return err
	}
	if err := vm.Set("print", printFunc(stdout)); err != nil {
		return err
	}

	if jrnl != nil {
		if err := jrnl.BeginRun(ctx, runID, path); err != nil {
			return err
		}
		begun = true
	}

	if cfg.AdminAddr != "" {
		sc := config.DefaultServerConfig()
		sc.Addr = cfg.AdminAddr
		admin = server.New(sc, logger, server.WithScheduler(s), server.WithOffload(lib), server.WithJournal(jrnl))
		admin.Start()
	}

	log.Info("run started", "script", path)
	if _, err := vm.RunString(string(src)); err != nil {
		return fmt.Errorf("evaluate %s: %w", path, err)
	}

	loop := scheduler.NewLoop(s, scheduler.LoopConfig{
		PollInterval: cfg.PollInterval,
		MaxSteps:     cfg.MaxSteps,
		StopOnError:  cfg.StopOnError,
	}, logger)
	if err := loop.Start(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Warn("run aborted", "steps", loop.Steps(), "error", err)
		}
		return err
	}
	off := lib.OffloadStats()
	log.Info("run finished", "steps", loop.Steps(), "offloaded", off.Completed, "offload_failures", off.Failed)
	return nil
}

// printFunc returns the script-visible print: its arguments converted with
// String and joined by spaces, one line per call.
func printFunc(w io.Writer) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		fmt.Fprintln(w, strings.Join(parts, " "))
		return goja.Undefined()
	}
}

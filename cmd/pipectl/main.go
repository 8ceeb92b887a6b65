// Command pipectl runs a YAML-defined agentic pipeline against the pi
// coding-agent subprocess, rendering live progress and persisting a
// history summary on completion.
//
// This is the thin outer layer spec.md §1 scopes out of the core: manual
// flag scanning in the teacher's own style (src/cmd/gcluster/main.go's
// command map, src/cmd/gprompt/main.go's in-place arg splicing), wiring
// config/engine/store/observer together and nothing more.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"pipectl/internal/agent"
	"pipectl/internal/config"
	"pipectl/internal/engine"
	"pipectl/internal/event"
	"pipectl/internal/observer/tui"
	"pipectl/internal/pipeline"
	"pipectl/internal/step"
	"pipectl/internal/store/sqlite"
	"pipectl/internal/telemetry"
)

var commands = map[string]func(args []string){
	"run":     cmdRun,
	"history": cmdHistory,
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
	}
	cmd(os.Args[2:])
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: pipectl <command> [args...]\n\ncommands:\n  run <pipeline.yaml>   Run a pipeline to completion\n  history               List past pipeline runs\n")
	os.Exit(1)
}

// cmdRun loads the pipeline, wires the engine, and runs it to completion,
// rendering a live TUI unless -no-tui is given (SPEC_FULL.md §4.8).
func cmdRun(args []string) {
	var (
		debug       bool
		noTUI       bool
		appConfPath = "pipectl.toml"
		parallelism = ""
		file        string
	)

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-d":
			debug = true
			args = append(args[:i], args[i+1:]...)
			i--
		case "-no-tui":
			noTUI = true
			args = append(args[:i], args[i+1:]...)
			i--
		case "-config":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "-config requires a path\n")
				os.Exit(1)
			}
			appConfPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
		case "-parallel":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "-parallel requires a value (sequential|parallel|<N>)\n")
				os.Exit(1)
			}
			parallelism = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
		default:
			if file == "" {
				file = args[i]
			}
		}
	}

	if file == "" {
		fmt.Fprintf(os.Stderr, "usage: pipectl run [-d] [-no-tui] [-config path] [-parallel sequential|parallel|N] <pipeline.yaml>\n")
		os.Exit(1)
	}

	appConf, err := config.LoadAppConfig(appConfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading %s: %v\n", file, err)
		os.Exit(1)
	}

	p, err := config.Load(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, s := range p.Steps {
		if s.TimeoutSecs == 0 {
			s.TimeoutSecs = appConf.DefaultTimeoutSecs
		}
	}

	sched := resolveScheduler(parallelism)

	tel := &telemetry.Telemetry{Enabled: debug}
	defer tel.Cleanup()

	driver := agent.New(appConf.PiPath)
	driver.Logger = tel
	exec := step.New(driver)

	executionID := fmt.Sprintf("%s-%s", p.Name, uuid.NewString())
	eng := engine.New(p, sched, exec, executionID)
	eng.RegisterObserver(&telemetryObserver{tel: tel, total: len(p.Steps)})

	store, err := sqlite.New(appConf.HistoryDBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening history store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startedState := &pipeline.State{ExecutionID: executionID, Status: pipeline.StatusRunning, StartedAt: time.Now(), Total: len(p.Steps)}
	if err := store.Save(ctx, engine.Summarize(p.Name, startedState)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: saving history: %v\n", err)
	}

	var tuiObs *tui.Observer
	var tuiDone chan error
	if !noTUI {
		tuiObs = tui.NewObserver()
		eng.RegisterObserver(tuiObs)
		tuiDone = make(chan error, 1)
		go func() { tuiDone <- tui.RunTUI(tuiObs) }()
	}

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sigCount := 0
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigCh {
			sigCount++
			if sigCount == 1 {
				fmt.Fprintln(os.Stderr, "\ninterrupting: finishing in-flight steps (press again to force quit)")
				eng.RequestInterrupt()
			} else {
				cancel()
			}
		}
	}()

	state, runErr := eng.Run(runCtx)

	if tuiObs != nil {
		tuiObs.Close()
		<-tuiDone
	}

	if err := store.Save(context.Background(), engine.Summarize(p.Name, state)); err != nil {
		fmt.Fprintf(os.Stderr, "warning: saving history: %v\n", err)
	}

	printSummary(p.Name, state)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
	if state.Status == pipeline.StatusFailed {
		os.Exit(1)
	}
}

func resolveScheduler(s string) engine.Scheduler {
	switch {
	case s == "" || s == "sequential":
		return engine.Sequential{}
	case s == "parallel":
		return engine.Parallel{}
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "invalid -parallel value %q, want sequential, parallel, or a positive integer\n", s)
			os.Exit(1)
		}
		return engine.LimitedParallel{N: n}
	}
}

func printSummary(name string, state *pipeline.State) {
	fmt.Printf("\npipeline %q: %s (%d/%d steps, %d failed)\n", name, state.Status, state.Completed, state.Total, state.Failed)
}

// cmdHistory lists past runs recorded in the history store.
func cmdHistory(args []string) {
	dbPath := "pipectl_history.db"
	for i := 0; i < len(args); i++ {
		if args[i] == "-db" && i+1 < len(args) {
			dbPath = args[i+1]
			i++
		}
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runs, err := store.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return
	}

	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s %-20s %-10s %3d/%-3d  started %s  completed %s\n",
			r.ExecutionID, r.PipelineName, r.Status, r.CompletedSteps, r.TotalSteps,
			r.StartedAt.Format(time.RFC3339), completed)
	}
}

// telemetryObserver feeds the engine's lifecycle stream into the "-d"
// footer tracer (internal/telemetry), separate from the richer TUI so
// debug tracing works even with -no-tui.
type telemetryObserver struct {
	tel   *telemetry.Telemetry
	total int
	done  int
}

func (o *telemetryObserver) ObserveLifecycle(ev engine.LifecycleEvent) {
	switch ev.Kind {
	case engine.EventStepStarted:
		o.tel.StepStarted(ev.StepID, ev.Attempt, o.done, o.total)
	case engine.EventStepOutput:
		if delta, ok := event.TextDelta(ev.RawEvent); ok {
			o.tel.StreamText(delta)
		}
	case engine.EventStepCompleted:
		o.done++
	case engine.EventStepFailed:
		o.done++
		o.tel.Log("step %s failed: %s", ev.StepID, ev.Error)
	}
}


package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/feichai0017/ocr-agent/config"
	"github.com/feichai0017/ocr-agent/internal/decompose"
	"github.com/feichai0017/ocr-agent/internal/engine"
	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/render"
	"github.com/feichai0017/ocr-agent/internal/watch"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

const usage = `Usage: ocr-agent <command> [flags]

Commands:
  enqueue   decompose inputs into tasks and append them to a job queue
  run       process the pending tasks of a job root
  status    print the aggregate status of a job root
  logs      print the log tail of the most recent run
  reset     clear the task queue, optionally deleting outputs
  watch     poll an inbox directory for completed bundles

Run "ocr-agent <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "enqueue":
		err = cmdEnqueue(os.Args[2:])
	case "run":
		err = cmdRun(os.Args[2:])
	case "status":
		err = cmdStatus(os.Args[2:])
	case "logs":
		err = cmdLogs(os.Args[2:])
	case "reset":
		err = cmdReset(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newManager builds the shared job manager from the runtime config.
func newManager(configPath string) (*job.Manager, logger.Logger, error) {
	if err := config.LoadFile(configPath); err != nil {
		return nil, nil, err
	}

	log, err := logger.NewLogger(
		logger.WithLevel(config.GetServerConfig().LogLevel),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
	)
	if err != nil {
		return nil, nil, err
	}

	engineCfg := config.GetEngineConfig()
	eng, err := engine.NewFromConfig(engineCfg)
	if err != nil {
		return nil, nil, err
	}
	renderer := render.NewPopplerRenderer(engineCfg.PDFRenderDPI)
	return job.NewManager(eng, renderer, log), log, nil
}

func cmdEnqueue(args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	jobRoot := fs.String("job-root", "", "job directory (required)")
	copyIn := fs.Bool("copy", false, "copy inputs into the job root first")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *jobRoot == "" || fs.NArg() == 0 {
		return fmt.Errorf("enqueue requires -job-root and at least one input path")
	}

	m, _, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()

	var ids []int64
	var report *decompose.Report
	if *copyIn {
		ids, report, err = m.AddInputs(context.Background(), *jobRoot, fs.Args())
	} else {
		ids, report, err = m.Enqueue(context.Background(), *jobRoot, fs.Args())
	}
	printReport(report)
	if err != nil {
		return err
	}

	fmt.Printf("Enqueued %d task(s), ids %d..%d\n", len(ids), ids[0], ids[len(ids)-1])
	return nil
}

// printReport surfaces the discovery diagnostics so the operator can see
// why a path contributed nothing.
func printReport(report *decompose.Report) {
	if report == nil {
		return
	}
	for _, p := range report.Missing {
		fmt.Fprintf(os.Stderr, "Warning: path does not exist: %s\n", p)
	}
	for _, p := range report.Unsupported {
		fmt.Fprintf(os.Stderr, "Warning: unsupported file type: %s (supported: %s)\n",
			p, strings.Join(decompose.SupportedExtensions(), " "))
	}
	for _, p := range report.EmptyDirs {
		fmt.Fprintf(os.Stderr, "Warning: no supported files in directory: %s\n", p)
	}
}

func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	jobRoot := fs.String("job-root", "", "job directory (required)")
	failFast := fs.Bool("fail-fast", false, "stop after the first failed task")
	normalize := fs.Bool("normalize", true, "normalize markers and math delimiters in the merged output")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *jobRoot == "" {
		return fmt.Errorf("run requires -job-root")
	}

	m, _, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()

	// Ctrl-C stops at the next task boundary; completed work is kept.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := job.RunOptions{FailFast: *failFast, Normalize: *normalize}
	if err := m.RunSync(ctx, *jobRoot, opts); err != nil {
		return err
	}
	return printStatus(m, *jobRoot)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jobRoot := fs.String("job-root", "", "job directory (required)")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *jobRoot == "" {
		return fmt.Errorf("status requires -job-root")
	}

	m, _, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()
	return printStatus(m, *jobRoot)
}

func printStatus(m *job.Manager, jobRoot string) error {
	status, err := m.Status(context.Background(), jobRoot)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func cmdLogs(args []string) error {
	fs := flag.NewFlagSet("logs", flag.ExitOnError)
	jobRoot := fs.String("job-root", "", "job directory (required)")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *jobRoot == "" {
		return fmt.Errorf("logs requires -job-root")
	}

	m, _, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()

	for _, line := range m.Logs(*jobRoot) {
		fmt.Println(line)
	}
	return nil
}

func cmdReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	jobRoot := fs.String("job-root", "", "job directory (required)")
	deleteOutputs := fs.Bool("delete-outputs", false, "also delete per-task and merged output files")
	yes := fs.Bool("yes", false, "confirm the destructive reset")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *jobRoot == "" {
		return fmt.Errorf("reset requires -job-root")
	}
	if *deleteOutputs && !*yes {
		return fmt.Errorf("reset -delete-outputs is destructive; re-run with -yes to confirm")
	}

	m, _, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Reset(context.Background(), *jobRoot, *deleteOutputs); err != nil {
		return err
	}
	fmt.Println("Job reset:", *jobRoot)
	return nil
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	inboxRoot := fs.String("inbox", "", "inbox directory to poll (required)")
	jobsRoot := fs.String("jobs-root", "", "directory for created jobs (default: <inbox parent>/jobs)")
	configPath := fs.String("config", "", "path to an ocr-agent.yaml config file")
	fs.Parse(args)

	if *inboxRoot == "" {
		return fmt.Errorf("watch requires -inbox")
	}

	m, log, err := newManager(*configPath)
	if err != nil {
		return err
	}
	defer m.Close()

	w := watch.NewWatcher(m, config.GetWatchConfig().PollInterval, job.RunOptions{Normalize: true}, log)
	if err := w.Start(*inboxRoot, *jobsRoot); err != nil {
		return err
	}

	status := w.Status()
	fmt.Printf("Watching %s (jobs in %s), Ctrl-C to stop\n", status.InboxRoot, status.JobsRoot)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	w.Stop()
	return nil
}

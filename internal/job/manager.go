package job

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/feichai0017/ocr-agent/internal/decompose"
	"github.com/feichai0017/ocr-agent/internal/engine"
	"github.com/feichai0017/ocr-agent/internal/models"
	"github.com/feichai0017/ocr-agent/internal/render"
	"github.com/feichai0017/ocr-agent/internal/store"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

// logRingSize bounds the per-job log tail kept for the logs query.
const logRingSize = 1500

// Manager owns the run state of all job roots in this process: at most
// one active runner per root, plus the per-root log tails. Queue state
// itself lives in each root's sqlite file; the manager opens a fresh
// connection per operation, which is what lets status and log reads
// proceed while a runner holds its own connection (WAL, multi-reader).
type Manager struct {
	engine   engine.Engine
	renderer render.PageRenderer
	log      logger.Logger

	mu         sync.Mutex
	active     map[string]*activeRun
	rings      map[string]*logger.Ring
	lastRunErr map[string]string
}

type activeRun struct {
	runner    *Runner
	startedAt time.Time
}

func NewManager(eng engine.Engine, renderer render.PageRenderer, log logger.Logger) *Manager {
	return &Manager{
		engine:     eng,
		renderer:   renderer,
		log:        log,
		active:     make(map[string]*activeRun),
		rings:      make(map[string]*logger.Ring),
		lastRunErr: make(map[string]string),
	}
}

func (m *Manager) openStore(layout Layout) (store.TaskStore, error) {
	return store.NewSQLiteStore(layout.QueuePath())
}

// Enqueue decomposes the inputs and appends the resulting tasks to the
// job root's queue. The discovery report is returned even alongside an
// error so callers can show what was wrong with the inputs.
func (m *Manager) Enqueue(ctx context.Context, jobRoot string, inputs []string) ([]int64, *decompose.Report, error) {
	layout := NewLayout(jobRoot)
	if err := layout.Ensure(); err != nil {
		return nil, nil, err
	}

	specs, report, err := decompose.Decompose(inputs)
	if err != nil {
		return nil, report, err
	}

	st, err := m.openStore(layout)
	if err != nil {
		return nil, report, err
	}
	defer st.Close()

	ids, err := st.Enqueue(ctx, specs)
	if err != nil {
		return nil, report, err
	}
	m.log.Info("tasks enqueued",
		logger.String("jobRoot", layout.Root),
		logger.Int("count", len(ids)),
	)
	return ids, report, nil
}

// AddInputs copies external files into the job's input directory first,
// so the job root stays self-contained, then enqueues the copies.
func (m *Manager) AddInputs(ctx context.Context, jobRoot string, sources []string) ([]int64, *decompose.Report, error) {
	layout := NewLayout(jobRoot)
	copied, err := AddInputs(layout, sources)
	if err != nil {
		return nil, nil, err
	}
	return m.Enqueue(ctx, jobRoot, copied)
}

// Run starts the pipeline for jobRoot asynchronously. It returns
// ErrJobAlreadyRunning while a previous run of the same root is active.
func (m *Manager) Run(jobRoot string, opts RunOptions) error {
	runner, st, err := m.begin(jobRoot, opts)
	if err != nil {
		return err
	}
	go func() {
		defer st.Close()
		// Detached from the caller: an HTTP request ending must not kill
		// the run it started.
		m.finish(jobRoot, runner.Run(context.Background()))
	}()
	return nil
}

// RunSync runs the pipeline inline and returns its error. The watcher
// uses this to know when a bundle's job is done.
func (m *Manager) RunSync(ctx context.Context, jobRoot string, opts RunOptions) error {
	runner, st, err := m.begin(jobRoot, opts)
	if err != nil {
		return err
	}
	defer st.Close()
	err = runner.Run(ctx)
	m.finish(jobRoot, err)
	return err
}

func (m *Manager) begin(jobRoot string, opts RunOptions) (*Runner, store.TaskStore, error) {
	layout := NewLayout(jobRoot)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.active[layout.Root]; running {
		return nil, nil, models.ErrJobAlreadyRunning
	}

	st, err := m.openStore(layout)
	if err != nil {
		return nil, nil, err
	}

	// Fresh ring per run; it stays queryable after the run ends.
	ring := logger.NewRing(logRingSize)
	m.rings[layout.Root] = ring
	runLog := logger.NewTeeLogger(m.log, logger.NewRingCore(ring, logger.InfoLevel)).
		With(logger.String("jobRoot", layout.Root))

	runner := NewRunner(layout, st, m.engine, m.renderer, opts, runLog)
	m.active[layout.Root] = &activeRun{runner: runner, startedAt: time.Now()}
	delete(m.lastRunErr, layout.Root)

	runLog.Info("run started")
	return runner, st, nil
}

func (m *Manager) finish(jobRoot string, err error) {
	root := NewLayout(jobRoot).Root
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, root)
	if err != nil {
		m.lastRunErr[root] = err.Error()
		m.log.Error("run aborted", logger.String("jobRoot", root), logger.Error(err))
		return
	}
	m.log.Info("run finished", logger.String("jobRoot", root))
}

// Cancel flags the active run of jobRoot to stop at the next task
// boundary. Cancelling an idle root is an error.
func (m *Manager) Cancel(jobRoot string) error {
	root := NewLayout(jobRoot).Root
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.active[root]
	if !ok {
		return fmt.Errorf("no active run for %s", root)
	}
	run.runner.Cancel()
	return nil
}

// Status returns the aggregate snapshot for jobRoot. Reads go through
// their own store connection and never block the runner.
func (m *Manager) Status(ctx context.Context, jobRoot string) (*models.JobStatus, error) {
	layout := NewLayout(jobRoot)
	st, err := m.openStore(layout)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	status, err := snapshot(ctx, layout, st)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if run, ok := m.active[layout.Root]; ok {
		status.IsRunning = true
		millis := run.startedAt.UnixMilli()
		status.StartedAt = &millis
	}
	if status.LastError == "" {
		status.LastError = m.lastRunErr[layout.Root]
	}
	m.mu.Unlock()

	return status, nil
}

// Logs returns the tail of the most recent run's log lines for jobRoot.
func (m *Manager) Logs(jobRoot string) []string {
	root := NewLayout(jobRoot).Root
	m.mu.Lock()
	ring := m.rings[root]
	m.mu.Unlock()
	if ring == nil {
		return []string{}
	}
	return ring.Lines()
}

// Reset deletes every task row of jobRoot and, when deleteOutputs is
// set, the output artifacts as well. Refused while a run is active.
func (m *Manager) Reset(ctx context.Context, jobRoot string, deleteOutputs bool) error {
	layout := NewLayout(jobRoot)

	m.mu.Lock()
	if _, running := m.active[layout.Root]; running {
		m.mu.Unlock()
		return models.ErrJobAlreadyRunning
	}
	m.mu.Unlock()

	if err := refuseUnsafeRoot(layout.Root); err != nil {
		return err
	}

	st, err := m.openStore(layout)
	if err != nil {
		return err
	}
	deleted, err := st.DeleteAllTasks(ctx)
	st.Close()
	if err != nil {
		return err
	}

	if deleteOutputs {
		if err := os.RemoveAll(layout.OutputDir()); err != nil {
			return fmt.Errorf("failed to delete outputs: %w", err)
		}
		if err := os.Remove(layout.MergedPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete merged document: %w", err)
		}
	}

	m.mu.Lock()
	delete(m.rings, layout.Root)
	delete(m.lastRunErr, layout.Root)
	m.mu.Unlock()

	m.log.Info("job reset",
		logger.String("jobRoot", layout.Root),
		logger.Int64("deletedTasks", deleted),
		logger.Bool("deleteOutputs", deleteOutputs),
	)
	return nil
}

// Close releases the shared engine handle.
func (m *Manager) Close() error {
	return m.engine.Close()
}

// refuseUnsafeRoot rejects job roots whose deletion would be
// catastrophic: the filesystem root, a volume root, or the home
// directory itself.
func refuseUnsafeRoot(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("cannot resolve job root: %w", err)
	}
	if filepath.Dir(abs) == abs {
		return fmt.Errorf("refusing to reset filesystem root %s", abs)
	}
	if home, err := os.UserHomeDir(); err == nil && abs == filepath.Clean(home) {
		return fmt.Errorf("refusing to reset home directory %s", abs)
	}
	return nil
}

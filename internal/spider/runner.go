package spider

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"animehub/internal/events"
	"animehub/internal/ingest"
	"animehub/pkg/models"
)

// SubjectIngestor pulls one external subject into the catalog.
type SubjectIngestor interface {
	IngestSubject(ctx context.Context, subjectID string) (ingest.Outcome, error)
}

// ErrAlreadyRunning means the named job has a live runner goroutine.
var ErrAlreadyRunning = errors.New("spider: job already running")

// Manager owns the runner goroutines. At most one runner per job name
// is alive at a time; a paused job keeps its row and can be resumed,
// which starts a fresh run from the first unvisited subject onward.
type Manager struct {
	registry *Registry
	ingestor SubjectIngestor
	hub      *events.Hub
	logger   *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewManager(registry *Registry, ingestor SubjectIngestor, hub *events.Hub, logger *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		ingestor: ingestor,
		hub:      hub,
		logger:   logger,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start launches a runner for the named job. The job must exist and
// be active; a second Start while the first run is alive fails.
func (m *Manager) Start(ctx context.Context, name string) (runID string, err error) {
	job, err := m.registry.Get(ctx, name)
	if err != nil {
		return "", err
	}
	if job.Status != models.SpiderActive {
		return "", ErrBadTransition
	}

	m.mu.Lock()
	if _, ok := m.running[name]; ok {
		m.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(context.Background())
	m.running[name] = cancel
	m.mu.Unlock()

	runID = uuid.NewString()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.running, name)
			m.mu.Unlock()
			cancel()
		}()
		m.run(runCtx, job, runID)
	}()

	return runID, nil
}

// Stop cancels the named job's runner if one is alive. It does not
// touch the job row; pair it with Registry.Pause or Expire.
func (m *Manager) Stop(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cancel, ok := m.running[name]
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether the named job has a live runner.
func (m *Manager) Running(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[name]
	return ok
}

// Shutdown cancels every runner and waits for them to drain.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for _, cancel := range m.running {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// run walks the job's subject ids in order, one at a time. Between
// subjects it re-reads the job row so a pause or expire issued through
// the API takes effect at the next boundary.
func (m *Manager) run(ctx context.Context, job *models.Spider, runID string) {
	total := len(job.SubjectIDs)
	log := m.logger.With(zap.String("job", job.Name), zap.String("run_id", runID))
	log.Info("job started", zap.Int("subjects", total))

	m.hub.Broadcast(events.JobEvent{
		Type:  events.TypeJobStarted,
		Job:   job.Name,
		RunID: runID,
		Total: total,
	})

	done := 0
	for _, id := range job.SubjectIDs {
		if ctx.Err() != nil {
			break
		}

		current, err := m.registry.Get(ctx, job.Name)
		if err != nil || current.Status != models.SpiderActive {
			log.Info("job no longer active, stopping",
				zap.Int("done", done))
			break
		}

		outcome, err := m.ingestor.IngestSubject(ctx, id)
		if err != nil {
			log.Warn("subject failed",
				zap.String("subject_id", id), zap.Error(err))
			m.hub.Broadcast(events.JobEvent{
				Type:      events.TypeJobError,
				Job:       job.Name,
				RunID:     runID,
				SubjectID: id,
				Error:     err.Error(),
				Done:      done,
				Total:     total,
			})
			continue
		}

		done++
		m.hub.Broadcast(events.JobEvent{
			Type:      events.TypeJobSubject,
			Job:       job.Name,
			RunID:     runID,
			SubjectID: id,
			Outcome:   string(outcome),
			Done:      done,
			Total:     total,
		})
	}

	log.Info("job finished", zap.Int("done", done), zap.Int("total", total))
	m.hub.Broadcast(events.JobEvent{
		Type:  events.TypeJobFinished,
		Job:   job.Name,
		RunID: runID,
		Done:  done,
		Total: total,
	})
}

package spider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"animehub/internal/events"
	"animehub/internal/ingest"
)

type fakeIngestor struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
	hook   func(id string)
}

func (f *fakeIngestor) IngestSubject(_ context.Context, id string) (ingest.Outcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	if f.hook != nil {
		f.hook(id)
	}
	if f.failOn[id] {
		return ingest.OutcomeFailed, fmt.Errorf("subject %s unavailable", id)
	}
	return ingest.OutcomeCommitted, nil
}

func (f *fakeIngestor) ingested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// eventTap attaches a pipe to the hub and decodes job events off it.
func newEventTap(t *testing.T, hub *events.Hub) <-chan events.JobEvent {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	ch := make(chan events.JobEvent, 64)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
			var ev events.JobEvent
			if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
				continue
			}
			if strings.HasPrefix(ev.Type, "job.") {
				ch <- ev
			}
		}
	}()

	hub.Attach(server)
	return ch
}

// collectRun reads events until job.finished arrives.
func collectRun(t *testing.T, ch <-chan events.JobEvent) []events.JobEvent {
	t.Helper()
	var out []events.JobEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
			if ev.Type == events.TypeJobFinished {
				return out
			}
		case <-deadline:
			t.Fatalf("run did not finish, got %d events", len(out))
		}
	}
}

func waitNotRunning(t *testing.T, m *Manager, name string) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if !m.Running(name) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %q still running", name)
}

func newTestManager(t *testing.T, fake *fakeIngestor) (*Manager, *Registry, <-chan events.JobEvent) {
	t.Helper()
	registry := NewRegistry(newTestDB(t))
	hub := events.NewHub(zap.NewNop())
	tap := newEventTap(t, hub)
	m := NewManager(registry, fake, hub, zap.NewNop())
	t.Cleanup(m.Shutdown)
	return m, registry, tap
}

func TestRunnerEmitsLifecycleEvents(t *testing.T) {
	fake := &fakeIngestor{}
	m, registry, tap := newTestManager(t, fake)
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101", "102", "103"}, false)
	require.NoError(t, err)

	runID, err := m.Start(ctx, "season")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	evs := collectRun(t, tap)
	require.GreaterOrEqual(t, len(evs), 5)

	assert.Equal(t, events.TypeJobStarted, evs[0].Type)
	assert.Equal(t, 3, evs[0].Total)
	assert.Equal(t, runID, evs[0].RunID)

	var subjects []string
	for _, ev := range evs[1 : len(evs)-1] {
		require.Equal(t, events.TypeJobSubject, ev.Type)
		assert.Equal(t, string(ingest.OutcomeCommitted), ev.Outcome)
		subjects = append(subjects, ev.SubjectID)
	}
	assert.Equal(t, []string{"101", "102", "103"}, subjects)

	last := evs[len(evs)-1]
	assert.Equal(t, 3, last.Done)
	assert.Equal(t, []string{"101", "102", "103"}, fake.ingested())
}

func TestRunnerReportsFailuresAndContinues(t *testing.T) {
	fake := &fakeIngestor{failOn: map[string]bool{"102": true}}
	m, registry, tap := newTestManager(t, fake)
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101", "102", "103"}, false)
	require.NoError(t, err)
	_, err = m.Start(ctx, "season")
	require.NoError(t, err)

	evs := collectRun(t, tap)

	var errored []string
	for _, ev := range evs {
		if ev.Type == events.TypeJobError {
			errored = append(errored, ev.SubjectID)
			assert.Contains(t, ev.Error, "102")
		}
	}
	assert.Equal(t, []string{"102"}, errored)

	last := evs[len(evs)-1]
	assert.Equal(t, 2, last.Done)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, []string{"101", "102", "103"}, fake.ingested())
}

func TestSecondStartWhileRunningFails(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeIngestor{hook: func(string) { <-release }}
	m, registry, tap := newTestManager(t, fake)
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101"}, false)
	require.NoError(t, err)
	_, err = m.Start(ctx, "season")
	require.NoError(t, err)

	_, err = m.Start(ctx, "season")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(release)
	collectRun(t, tap)
	waitNotRunning(t, m, "season")

	// once the first run drains, a new one may start
	_, err = m.Start(ctx, "season")
	assert.NoError(t, err)
}

func TestPauseStopsAtSubjectBoundary(t *testing.T) {
	var registry *Registry
	fake := &fakeIngestor{}
	fake.hook = func(id string) {
		if id == "101" {
			_ = registry.Pause(context.Background(), "season")
		}
	}
	m, reg, tap := newTestManager(t, fake)
	registry = reg
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101", "102", "103"}, false)
	require.NoError(t, err)
	_, err = m.Start(ctx, "season")
	require.NoError(t, err)

	evs := collectRun(t, tap)
	last := evs[len(evs)-1]
	assert.Equal(t, 1, last.Done)
	assert.Equal(t, []string{"101"}, fake.ingested())
}

func TestStartRequiresActiveJob(t *testing.T) {
	fake := &fakeIngestor{}
	m, registry, _ := newTestManager(t, fake)
	ctx := context.Background()

	_, err := m.Start(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = registry.Create(ctx, "season", []string{"101"}, false)
	require.NoError(t, err)
	require.NoError(t, registry.Pause(ctx, "season"))

	_, err = m.Start(ctx, "season")
	assert.ErrorIs(t, err, ErrBadTransition)
	assert.Empty(t, fake.ingested())
}

package spider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/events"
)

func newTestRouter(t *testing.T, fake *fakeIngestor) (*gin.Engine, *Registry, *Manager, <-chan events.JobEvent) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, registry, tap := newTestManager(t, fake)
	router := gin.New()
	NewHandler(registry, m).RegisterRoutes(router.Group("/jobs"))
	return router, registry, m, tap
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestResumeRestartsRunner(t *testing.T) {
	fake := &fakeIngestor{}
	router, registry, _, tap := newTestRouter(t, fake)
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101", "102"}, false)
	require.NoError(t, err)
	require.NoError(t, registry.Pause(ctx, "season"))

	w := doRequest(router, http.MethodPost, "/jobs/season/resume")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "active", body["status"])
	assert.NotEmpty(t, body["run_id"])

	evs := collectRun(t, tap)
	assert.Equal(t, 2, evs[len(evs)-1].Done)
	assert.Equal(t, []string{"101", "102"}, fake.ingested())
}

func TestResumeToleratesLiveRunner(t *testing.T) {
	release := make(chan struct{})
	fake := &fakeIngestor{hook: func(string) { <-release }}
	router, registry, m, tap := newTestRouter(t, fake)
	ctx := context.Background()

	_, err := registry.Create(ctx, "season", []string{"101"}, false)
	require.NoError(t, err)
	_, err = m.Start(ctx, "season")
	require.NoError(t, err)

	// pause while the runner is blocked mid-subject, then resume:
	// the live runner keeps the name, no second one may start
	require.NoError(t, registry.Pause(ctx, "season"))
	w := doRequest(router, http.MethodPost, "/jobs/season/resume")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body["run_id"])

	close(release)
	collectRun(t, tap)
	assert.Equal(t, []string{"101"}, fake.ingested())
}

func TestResumeActiveJobConflicts(t *testing.T) {
	fake := &fakeIngestor{}
	router, registry, _, _ := newTestRouter(t, fake)

	_, err := registry.Create(context.Background(), "season", []string{"101"}, false)
	require.NoError(t, err)

	w := doRequest(router, http.MethodPost, "/jobs/season/resume")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, fake.ingested())
}

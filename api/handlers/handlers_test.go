package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/ocr-agent/internal/job"
	"github.com/feichai0017/ocr-agent/internal/watch"
	"github.com/feichai0017/ocr-agent/pkg/logger"
)

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
}

func (e *blockingEngine) RecognizeImage(_ context.Context, imagePath string) (string, error) {
	if e.started != nil {
		e.started <- struct{}{}
		<-e.release
	}
	return "text of " + filepath.Base(imagePath), nil
}

func (e *blockingEngine) Close() error { return nil }

type noopRenderer struct{}

func (noopRenderer) RenderPage(_ context.Context, _ string, _ int, outputPath string) error {
	return os.WriteFile(outputPath, []byte("png"), 0o644)
}

func newTestRouter(eng *blockingEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := logger.NewTestLogger()
	manager := job.NewManager(eng, noopRenderer{}, log)
	watcher := watch.NewWatcher(manager, time.Hour, job.RunOptions{}, log)
	h := NewHandlers(manager, watcher, log)

	r := gin.New()
	v1 := r.Group("/api/v1")
	jobs := v1.Group("/jobs")
	jobs.POST("/enqueue", h.Job.Enqueue)
	jobs.POST("/run", h.Job.Run)
	jobs.POST("/cancel", h.Job.Cancel)
	jobs.GET("/status", h.Job.Status)
	jobs.GET("/logs", h.Job.Logs)
	jobs.POST("/reset", h.Job.Reset)
	w := v1.Group("/watch")
	w.POST("/start", h.Watch.Start)
	w.POST("/stop", h.Watch.Stop)
	w.GET("/status", h.Watch.Status)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func writeImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	return path
}

func TestEnqueueEndpoint(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	root := t.TempDir()
	img := writeImage(t, "a.png")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/enqueue", gin.H{
		"jobRoot": root,
		"inputs":  []string{img},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp enqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []int64{1}, resp.TaskIDs)
}

func TestEnqueueNothingFound(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/enqueue", gin.H{
		"jobRoot": t.TempDir(),
		"inputs":  []string{filepath.Join(t.TempDir(), "missing.png")},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "report")
}

func TestEnqueueRejectsBadBody(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/enqueue", gin.H{"inputs": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunConflictAndCancel(t *testing.T) {
	eng := &blockingEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	r := newTestRouter(eng)
	root := t.TempDir()
	img := writeImage(t, "a.png")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/enqueue", gin.H{
		"jobRoot": root, "inputs": []string{img},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/jobs/run", gin.H{"jobRoot": root})
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-eng.started

	rec = doJSON(t, r, http.MethodPost, "/api/v1/jobs/run", gin.H{"jobRoot": root})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/jobs/status?jobRoot="+root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isRunning":true`)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/jobs/cancel", gin.H{"jobRoot": root})
	assert.Equal(t, http.StatusOK, rec.Code)

	close(eng.release)
	require.Eventually(t, func() bool {
		rec := doJSON(t, r, http.MethodGet, "/api/v1/jobs/status?jobRoot="+root, nil)
		return rec.Code == http.StatusOK &&
			bytes.Contains(rec.Body.Bytes(), []byte(`"isRunning":false`))
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCancelWithoutRun(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/cancel", gin.H{"jobRoot": t.TempDir()})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusRequiresJobRoot(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	rec := doJSON(t, r, http.MethodGet, "/api/v1/jobs/status", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetEndpoint(t *testing.T) {
	r := newTestRouter(&blockingEngine{})
	root := t.TempDir()
	img := writeImage(t, "a.png")

	rec := doJSON(t, r, http.MethodPost, "/api/v1/jobs/enqueue", gin.H{
		"jobRoot": root, "inputs": []string{img},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/jobs/reset", gin.H{
		"jobRoot": root, "deleteOutputs": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/jobs/status?jobRoot="+root, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":0`)
}

func TestWatchLifecycleEndpoints(t *testing.T) {
	r := newTestRouter(&blockingEngine{})

	rec := doJSON(t, r, http.MethodGet, "/api/v1/watch/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)

	inbox := t.TempDir()
	rec = doJSON(t, r, http.MethodPost, "/api/v1/watch/start", gin.H{
		"inboxRoot": inbox,
		"jobsRoot":  t.TempDir(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":true`)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/watch/start", gin.H{"inboxRoot": inbox})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/watch/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"running":false`)
}

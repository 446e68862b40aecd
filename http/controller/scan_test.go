package controller

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinolens/vinolens-analyzer/config"
	"github.com/vinolens/vinolens-analyzer/entity"
	"github.com/vinolens/vinolens-analyzer/http/controller/dto"
	"github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
)

type fakeBlobStore struct {
	err  error
	urls int
}

func (f *fakeBlobStore) PutImage(ctx context.Context, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.urls++
	return fmt.Sprintf("http://blob/scans/img-%d.jpg", f.urls), nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	err      error
	messages []produce.ScanJobMessage
}

func (f *fakeDispatcher) PublishAnalyzeScan(ctx context.Context, msg produce.ScanJobMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msg)
	return nil
}

type testEnv struct {
	router     *gin.Engine
	scanRepo   *repository.ScanRepository
	blobs      *fakeBlobStore
	dispatcher *fakeDispatcher
	redis      *miniredis.Miniredis
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	envCfg := &config.EnvConfig{}
	envCfg.Redis.RedisHost = host
	envCfg.Redis.RedisPort = port
	envCfg.Scan.TTLSeconds = 3600
	envCfg.Scan.MaxEntryBytes = 65536
	envCfg.Scan.MaxImageBytes = 1 << 20

	scanRepo := repository.NewScanRepository(infra.InitRedisClient(envCfg), time.Hour, envCfg.Scan.MaxEntryBytes)

	blobs := &fakeBlobStore{}
	dispatcher := &fakeDispatcher{}

	ctrl := &Controller{
		Config:     &config.Config{EnvConfig: envCfg},
		Infra:      &infra.Infra{Logger: infra.InitLoggerClient(envCfg)},
		Repository: &repository.Repository{ScanRepo: scanRepo},
		Blobs:      blobs,
		Dispatch:   dispatcher,
	}

	router := gin.New()
	router.POST("/api/v1/scans", ctrl.SubmitScan)
	router.GET("/api/v1/scans/:job_id", ctrl.GetScanStatus)

	return &testEnv{
		router:     router,
		scanRepo:   scanRepo,
		blobs:      blobs,
		dispatcher: dispatcher,
		redis:      mr,
	}
}

func (e *testEnv) submit(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) poll(t *testing.T, jobID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+jobID, nil)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func validSubmission() string {
	img := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	return fmt.Sprintf(`{"image": %q, "request_id": "req-1"}`, img)
}

func decodeSubmitResponse(t *testing.T, w *httptest.ResponseRecorder) dto.SubmitScanResponse {
	t.Helper()
	var resp dto.SubmitScanResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeStatusResponse(t *testing.T, w *httptest.ResponseRecorder) dto.ScanStatusResponse {
	t.Helper()
	var resp dto.ScanStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSubmitScanReturnsImmediatelyWithJobID(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decodeSubmitResponse(t, w)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "processing", resp.Status)
	assert.Equal(t, "req-1", resp.RequestID)

	// Dispatch happened, and the record is already in processing.
	require.Len(t, env.dispatcher.messages, 1)
	assert.Equal(t, resp.JobID, env.dispatcher.messages[0].JobID)

	job, err := env.scanRepo.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, job.Status)
	assert.NotEmpty(t, job.ImageURL)
}

func TestSubmitScanAllocatesUniqueJobIDs(t *testing.T) {
	env := newTestEnv(t)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		w := env.submit(t, validSubmission())
		require.Equal(t, http.StatusAccepted, w.Code)
		resp := decodeSubmitResponse(t, w)
		assert.False(t, seen[resp.JobID], "job id %s issued twice", resp.JobID)
		seen[resp.JobID] = true
	}
}

func TestSubmitScanRejectsMissingImage(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, `{"request_id": "req-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.dispatcher.messages)
	// Rejected before any job was created.
	assert.Empty(t, env.redis.Keys())
}

func TestSubmitScanRejectsUndecodableImage(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, `{"image": "this is !!! not base64"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, env.redis.Keys())
}

func TestSubmitScanAcceptsDataURL(t *testing.T) {
	env := newTestEnv(t)

	img := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png bytes"))
	w := env.submit(t, fmt.Sprintf(`{"image": %q}`, img))
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestSubmitScanDispatchFailureMarksTriggerFailed(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.err = errors.New("broker connection refused")

	w := env.submit(t, validSubmission())
	require.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeSubmitResponse(t, w)
	require.NotEmpty(t, resp.JobID)
	assert.Equal(t, "error", resp.Status)

	// The failure is also observable by polling.
	pollResp := decodeStatusResponse(t, env.poll(t, resp.JobID))
	assert.Equal(t, "trigger_failed", pollResp.Status)
	assert.Contains(t, pollResp.Error, "broker connection refused")
}

func TestPollUnknownJobReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.poll(t, "no-such-job")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeStatusResponse(t, w)
	assert.Equal(t, "not_found", resp.Status)
	assert.Nil(t, resp.Data)
}

func TestPollAfterTTLReturnsNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	resp := decodeSubmitResponse(t, w)

	env.redis.FastForward(2 * time.Hour)

	pollResp := decodeStatusResponse(t, env.poll(t, resp.JobID))
	assert.Equal(t, "not_found", pollResp.Status)
}

func TestPollProcessingJob(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	resp := decodeSubmitResponse(t, w)

	pollResp := decodeStatusResponse(t, env.poll(t, resp.JobID))
	assert.Equal(t, "processing", pollResp.Status)
	assert.Nil(t, pollResp.Data)
}

func completeJob(t *testing.T, env *testEnv, jobID string, items []entity.Item) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, env.scanRepo.PutDetail(ctx, &entity.ScanDetail{JobID: jobID, Items: items}))

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.DisplayName()
	}
	now := time.Now().UTC()
	status := entity.StatusCompleted
	_, err := env.scanRepo.Update(ctx, jobID, entity.ScanJobPatch{
		Status:      &status,
		CompletedAt: &now,
		ResultSummary: &entity.ResultSummary{
			ItemCount: len(items),
			ItemNames: names,
		},
	})
	require.NoError(t, err)
}

func TestPollCompletedJobMergesDetailItems(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	resp := decodeSubmitResponse(t, w)

	items := []entity.Item{
		{Name: "Barolo", Vintage: "2018", Score: 93, Summary: "earthy"},
		{Name: "Chianti", Score: 84},
	}
	completeJob(t, env, resp.JobID, items)

	pollResp := decodeStatusResponse(t, env.poll(t, resp.JobID))
	require.Equal(t, "completed", pollResp.Status)
	require.NotNil(t, pollResp.Data)
	assert.Equal(t, items, pollResp.Data.Items)
	assert.NotEmpty(t, pollResp.Data.ImageURL)
}

func TestPollCompletedJobIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	resp := decodeSubmitResponse(t, w)
	completeJob(t, env, resp.JobID, []entity.Item{{Name: "Barolo", Score: 93, FlavorProfile: map[string]int{"fruit": 6, "tannin": 8}}})

	first := env.poll(t, resp.JobID)
	second := env.poll(t, resp.JobID)
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestPollCompletedJobDegradesWhenDetailMissing(t *testing.T) {
	env := newTestEnv(t)

	w := env.submit(t, validSubmission())
	resp := decodeSubmitResponse(t, w)
	completeJob(t, env, resp.JobID, []entity.Item{{Name: "Barolo"}, {Name: "Chianti"}})

	// Simulate the detail record being gone (expired, or racing the second
	// write). The poll must degrade to the summary, not error.
	env.redis.Del("scan:job:" + resp.JobID + ":detail")

	pollW := env.poll(t, resp.JobID)
	require.Equal(t, http.StatusOK, pollW.Code)
	pollResp := decodeStatusResponse(t, pollW)
	assert.Equal(t, "completed", pollResp.Status)
	require.NotNil(t, pollResp.Data)
	require.Len(t, pollResp.Data.Items, 2)
	assert.Equal(t, "Barolo", pollResp.Data.Items[0].Name)
	assert.Equal(t, "Chianti", pollResp.Data.Items[1].Name)
}

func TestDecodeImagePayload(t *testing.T) {
	data, contentType, err := decodeImagePayload(base64.StdEncoding.EncodeToString([]byte("abc")))
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, "image/jpeg", contentType)

	data, contentType, err = decodeImagePayload("data:image/webp;base64," + base64.StdEncoding.EncodeToString([]byte("xyz")))
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz"), data)
	assert.Equal(t, "image/webp", contentType)

	_, _, err = decodeImagePayload("")
	assert.Error(t, err)

	_, _, err = decodeImagePayload("data:image/png;base64")
	assert.Error(t, err)
}

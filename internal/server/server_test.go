package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/anneal/internal/config"
	"github.com/copyleftdev/anneal/internal/logging"
	"github.com/copyleftdev/anneal/internal/metrics"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "text"

	cfg.Annealing.MaxConcurrentRuns = 2
	cfg.Annealing.HistoryLimit = 100
	cfg.Annealing.RunTimeout = time.Minute

	return cfg
}

// testLogger creates a logger that discards its output
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.DebugLevel, io.Discard)
}

func newTestRouter(t *testing.T, srv *Server) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, reader))

	var decoded map[string]interface{}
	if rr.Body.Len() > 0 && strings.HasPrefix(strings.TrimSpace(rr.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

// endlessRun never cools enough to stop on its own.
func endlessRun() config.RunConfig {
	return config.RunConfig{
		Problem:  config.ProblemConfig{Name: "formula"},
		Schedule: config.ScheduleConfig{Kind: "linear", Initial: 1e9, Constant: 1e-6, Stopping: 0},
		Seed:     1,
	}
}

func formulaRun() config.RunConfig {
	rc := config.DefaultRunConfig()
	rc.Seed = 2024
	return rc
}

func waitForStatus(t *testing.T, srv *Server, id, want string) *RunStatus {
	t.Helper()
	var last *RunStatus
	require.Eventually(t, func() bool {
		st, err := srv.Status(id)
		require.NoError(t, err)
		last = st
		return st.Status == want
	}, 10*time.Second, 5*time.Millisecond, "run %s never reached %s", id, want)
	return last
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	assert.NotNil(t, srv, "Server should be created")
	assert.Equal(t, 2, cap(srv.slots))

	cfg := testConfig(t)
	cfg.Annealing.MaxConcurrentRuns = 0
	assert.Equal(t, 1, cap(NewServer(cfg, testLogger(t)).slots))
}

func TestRegisterRoutes(t *testing.T) {
	r := newTestRouter(t, NewServer(testConfig(t), testLogger(t)))

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{http.MethodPost, "/api/v1/anneal", true},
		{http.MethodGet, "/api/v1/runs", true},
		{http.MethodGet, "/api/v1/status/123", true},
		{http.MethodDelete, "/api/v1/anneal/123", true},
		{http.MethodPost, "/rpc", true},
		{http.MethodGet, "/healthz", false},
		{http.MethodGet, "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))

			// Registered routes answer with something other than chi's 404 page
			routed := rr.Code != http.StatusNotFound || strings.Contains(rr.Body.String(), "run not found")
			assert.Equal(t, tt.shouldExist, routed)
		})
	}
}

func TestRunLifecycleREST(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	r := newTestRouter(t, srv)

	rr, body := doJSON(t, r, http.MethodPost, "/api/v1/anneal", formulaRun())
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	id, _ := body["run_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, StatusPending, body["status"])

	waitForStatus(t, srv, id, StatusCompleted)

	rr, body = doJSON(t, r, http.MethodGet, "/api/v1/status/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, StatusCompleted, body["status"])
	assert.Equal(t, "formula", body["problem"])
	assert.Equal(t, 1.0, body["progress"])
	assert.NotEmpty(t, body["end_time"])

	result, ok := body["result"].(map[string]interface{})
	require.True(t, ok, "completed runs carry their result")
	best := result["best_solution"].(map[string]interface{})
	assert.Equal(t, []interface{}{10.0}, best["parameters"])
	assert.Equal(t, -4100.0, best["value"])
	assert.Equal(t, "schedule_stopped", result["stop_reason"])
	assert.LessOrEqual(t, len(result["history"].([]interface{})), 100)

	rr, _ = doJSON(t, r, http.MethodDelete, "/api/v1/anneal/"+id, nil)
	assert.Equal(t, http.StatusConflict, rr.Code, "finished runs cannot be cancelled")
}

func TestStartRejectsInvalidRuns(t *testing.T) {
	r := newTestRouter(t, NewServer(testConfig(t), testLogger(t)))

	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"unknown problem", config.RunConfig{Problem: config.ProblemConfig{Name: "tsp"}}},
		{"bad schedule", config.RunConfig{Schedule: config.ScheduleConfig{Kind: "geometric", Initial: 1, Constant: 2, Stopping: 0.1}}},
		{"missing bounds", config.RunConfig{Problem: config.ProblemConfig{Name: "sphere"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := doJSON(t, r, http.MethodPost, "/api/v1/anneal", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTooManyRunsAndCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Annealing.MaxConcurrentRuns = 1
	srv := NewServer(cfg, testLogger(t))
	r := newTestRouter(t, srv)

	rr, body := doJSON(t, r, http.MethodPost, "/api/v1/anneal", endlessRun())
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	id := body["run_id"].(string)

	rr, _ = doJSON(t, r, http.MethodPost, "/api/v1/anneal", formulaRun())
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr, body = doJSON(t, r, http.MethodDelete, "/api/v1/anneal/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "cancellation requested", body["status"])

	// The slot is released once the run goroutine returns
	require.Eventually(t, func() bool {
		rr, _ := doJSON(t, r, http.MethodPost, "/api/v1/anneal", formulaRun())
		return rr.Code == http.StatusAccepted
	}, 10*time.Second, 5*time.Millisecond)

	st, err := srv.Status(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	require.NotNil(t, st.Result, "cancelled runs keep their partial result")
	assert.Equal(t, "cancelled", st.Result.StopReason)
}

func TestCancelUnknownRun(t *testing.T) {
	r := newTestRouter(t, NewServer(testConfig(t), testLogger(t)))

	rr, body := doJSON(t, r, http.MethodDelete, "/api/v1/anneal/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, ErrRunNotFound.Error(), body["error"])

	rr, _ = doJSON(t, r, http.MethodGet, "/api/v1/status/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListRuns(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	r := newTestRouter(t, srv)

	first, err := srv.StartRun(formulaRun())
	require.NoError(t, err)
	second, err := srv.StartRun(formulaRun())
	require.NoError(t, err)
	waitForStatus(t, srv, first.ID, StatusCompleted)
	waitForStatus(t, srv, second.ID, StatusCompleted)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []RunStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, first.ID, runs[0].ID)
	assert.Equal(t, second.ID, runs[1].ID)
	assert.Nil(t, runs[0].Result, "listings leave results out")
}

func TestCloseCancelsRuns(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))

	state, err := srv.StartRun(endlessRun())
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	st, err := srv.Status(state.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, st.Status)
	assert.NotEmpty(t, st.EndTime)
}

func TestMetricsAreRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	srv := NewServer(testConfig(t), testLogger(t), WithMetrics(collector))
	t.Cleanup(func() { _ = srv.Close() })

	state, err := srv.StartRun(formulaRun())
	require.NoError(t, err)
	waitForStatus(t, srv, state.ID, StatusCompleted)

	count, err := testutil.GatherAndCount(reg, "anneal_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRejectedRunsLeaveNoSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg)
	require.NoError(t, err)

	r := newTestRouter(t, NewServer(testConfig(t), testLogger(t), WithMetrics(collector)))

	for i := 0; i < 3; i++ {
		rr, _ := doJSON(t, r, http.MethodPost, "/api/v1/anneal", config.RunConfig{
			Problem: config.ProblemConfig{Name: fmt.Sprintf("bogus-%d", i)},
		})
		require.Equal(t, http.StatusBadRequest, rr.Code)
	}

	count, err := testutil.GatherAndCount(reg,
		"anneal_best_fitness", "anneal_temperature", "anneal_moves_rejected_total", "anneal_runs_total")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCancelGreedyRunStuckAtOptimum(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	r := newTestRouter(t, srv)

	rc := formulaRun()
	rc.Seed = 1
	rc.Acceptance = config.AcceptanceConfig{Name: "never"}
	state, err := srv.StartRun(rc)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := srv.Status(state.ID)
		require.NoError(t, err)
		return st.BestSoFar != nil && st.BestSoFar.Value == -4100
	}, 10*time.Second, 5*time.Millisecond)

	rr, _ := doJSON(t, r, http.MethodDelete, "/api/v1/anneal/"+state.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	closed := make(chan struct{})
	go func() {
		_ = srv.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(10 * time.Second):
		t.Fatal("Close blocked on a cancelled run")
	}
	assert.Empty(t, srv.slots, "the run slot is released")
}

func TestHandlersLogWithRequestScope(t *testing.T) {
	var buf bytes.Buffer
	requestLogs := logging.New(logging.DebugLevel, &buf)

	srv := NewServer(testConfig(t), testLogger(t))
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware(requestLogs))
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })

	rr, body := doJSON(t, r, http.MethodPost, "/api/v1/anneal", formulaRun())
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] == "Run accepted" {
			accepted = entry
		}
	}
	require.NotNil(t, accepted, buf.String())
	assert.Equal(t, body["run_id"], accepted["run_id"])
	assert.NotEmpty(t, accepted["request_id"])
	assert.Equal(t, "/api/v1/anneal", accepted["path"])
}

func rpcCall(t *testing.T, h http.Handler, method string, params interface{}) map[string]interface{} {
	t.Helper()
	req := map[string]interface{}{"jsonrpc": "2.0", "id": 7, "method": method}
	if params != nil {
		req["params"] = params
	}
	rr, body := doJSON(t, h, http.MethodPost, "/rpc", req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2.0", body["jsonrpc"])
	return body
}

func rpcErrorCode(t *testing.T, body map[string]interface{}) float64 {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "expected an error object, got %v", body)
	return errObj["code"].(float64)
}

func TestJSONRPCLifecycle(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))
	r := newTestRouter(t, srv)

	body := rpcCall(t, r, "annealing.start", endlessRun())
	assert.Equal(t, float64(7), body["id"])
	result := body["result"].(map[string]interface{})
	id := result["run_id"].(string)

	// Array-wrapped params are accepted too
	body = rpcCall(t, r, "annealing.status", []interface{}{map[string]string{"run_id": id}})
	status := body["result"].(map[string]interface{})
	assert.Contains(t, []interface{}{StatusPending, StatusRunning}, status["status"])

	body = rpcCall(t, r, "annealing.cancel", map[string]string{"run_id": id})
	assert.Equal(t, StatusCancelled, body["result"].(map[string]interface{})["status"])

	body = rpcCall(t, r, "annealing.cancel", map[string]string{"run_id": id})
	assert.Equal(t, float64(codeServerError), rpcErrorCode(t, body))
}

func TestJSONRPCErrors(t *testing.T) {
	r := newTestRouter(t, NewServer(testConfig(t), testLogger(t)))

	t.Run("parse error", func(t *testing.T) {
		rr, body := doJSON(t, r, http.MethodPost, "/rpc", "{not json")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, float64(codeParseError), rpcErrorCode(t, body))
	})

	t.Run("wrong version", func(t *testing.T) {
		_, body := doJSON(t, r, http.MethodPost, "/rpc", map[string]interface{}{"jsonrpc": "1.0", "method": "annealing.status"})
		assert.Equal(t, float64(codeInvalidRequest), rpcErrorCode(t, body))
	})

	tests := []struct {
		name   string
		method string
		params interface{}
		code   int
	}{
		{"unknown method", "annealing.pause", nil, codeMethodNotFound},
		{"missing params", "annealing.status", nil, codeInvalidParams},
		{"missing run id", "annealing.status", map[string]string{}, codeInvalidParams},
		{"two element array", "annealing.cancel", []interface{}{map[string]string{}, map[string]string{}}, codeInvalidParams},
		{"unknown run", "annealing.status", map[string]string{"run_id": "nope"}, codeServerError},
		{"invalid run", "annealing.start", map[string]interface{}{"problem": map[string]string{"name": "tsp"}}, codeInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := rpcCall(t, r, tt.method, tt.params)
			assert.Equal(t, float64(tt.code), rpcErrorCode(t, body))
			assert.Equal(t, float64(7), body["id"])
		})
	}
}

func TestRespondWithError(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t))

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
	}{
		{"string id", codeInvalidParams, "invalid input", "123", "123"},
		{"nil id", codeServerError, "server error", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			// JSON-RPC errors travel in a 200 response
			assert.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var response map[string]interface{}
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))

			errObj, ok := response["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
			assert.Equal(t, tt.message, errObj["message"])
			assert.Equal(t, tt.expectedID, response["id"])
		})
	}
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/blackopt/internal/config"
	"github.com/copyleftdev/blackopt/internal/logging"
	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/optimization/vector"
	"github.com/copyleftdev/blackopt/internal/report"
	"github.com/copyleftdev/blackopt/internal/runs"
)

// fakeRunner reports one progress entry and, when release is set, blocks
// until it is closed or the run is cancelled.
type fakeRunner struct {
	score   float64
	release chan struct{}
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, req runs.Request) (*runs.Outcome, error) {
	if req.OnProgress != nil {
		req.OnProgress(optimization.Progress{Phase: "swarm", Iteration: 1, Total: 3, BestScore: f.score, Evaluations: 7})
	}

	term := optimization.Completed
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			term = optimization.Cancelled
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	v, _ := vector.Infer(req.Example)
	return &runs.Outcome{
		Record: report.Record{
			Method:      req.Strategy.Method(),
			Direction:   req.Direction.String(),
			Initial:     v,
			Final:       v,
			BestScore:   f.score,
			Evaluations: 7,
			Termination: string(term),
		},
		Result: &optimization.Result{Termination: term},
	}, nil
}

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Environment = "test"
	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(logging.DebugLevel, io.Discard)
}

func newTestServer(t *testing.T, runner Runner) (*Server, chi.Router) {
	t.Helper()
	srv := NewServer(testConfig(t), testLogger(t), runner)
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, r
}

func statusOf(t *testing.T, srv *Server, id string) string {
	t.Helper()
	st, err := srv.Status(id)
	require.NoError(t, err)
	return st["status"].(string)
}

func waitStatus(t *testing.T, srv *Server, id, want string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return statusOf(t, srv, id) == want
	}, 2*time.Second, 5*time.Millisecond, "run %s never reached %s", id, want)
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	var out map[string]interface{}
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestNewServer(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), &fakeRunner{})
	assert.NotNil(t, srv, "Server should be created")
	assert.Equal(t, 4, cap(srv.slots))

	cfg := testConfig(t)
	cfg.HTTP.MaxRuns = 0
	assert.Equal(t, 1, cap(NewServer(cfg, testLogger(t), &fakeRunner{}).slots))
}

func TestRegisterRoutes(t *testing.T) {
	_, r := newTestServer(t, &fakeRunner{})

	tests := []struct {
		method      string
		path        string
		shouldExist bool
	}{
		{"POST", "/api/v1/runs", true},
		{"GET", "/api/v1/runs", true},
		{"GET", "/api/v1/runs/123", true},
		{"DELETE", "/api/v1/runs/123", true},
		{"POST", "/rpc", true},
		{"GET", "/healthz", false}, // Not registered by server package
		{"GET", "/nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			found := r.Match(chi.NewRouteContext(), tt.method, tt.path)
			assert.Equal(t, tt.shouldExist, found)
		})
	}
}

func TestCreateAndFetchRun(t *testing.T) {
	srv, r := newTestServer(t, &fakeRunner{score: 12.5})

	rr, body := doJSON(t, r, "POST", "/api/v1/runs",
		`{"strategy":"pso","evaluator":"./model","example":"baixo 500 2.5","direction":"min"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	id := body["run_id"].(string)
	assert.Equal(t, "/api/v1/runs/"+id, rr.Header().Get("Location"))

	waitStatus(t, srv, id, StatusCompleted)

	rr, body = doJSON(t, r, "GET", "/api/v1/runs/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pso", body["strategy"])
	assert.Contains(t, body, "end_time")

	progress := body["progress"].(map[string]interface{})
	assert.Equal(t, "swarm", progress["phase"])
	assert.Equal(t, 12.5, progress["best_score"])

	result := body["result"].(map[string]interface{})
	assert.Equal(t, "Particle Swarm", result["method"])
	assert.Equal(t, "min", result["direction"])
	assert.Equal(t, "baixo 500 2.5", result["final"])
	assert.Equal(t, 12.5, result["best_score"])
	assert.Equal(t, "completed", result["termination"])

	rr, body = doJSON(t, r, "GET", "/api/v1/runs", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["runs"], 1)
}

func TestInfiniteScoresAreStrings(t *testing.T) {
	srv, r := newTestServer(t, &fakeRunner{score: math.Inf(-1)})

	id, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "1"})
	require.NoError(t, err)
	waitStatus(t, srv, id, StatusCompleted)

	rr, body := doJSON(t, r, "GET", "/api/v1/runs/"+id, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "-Inf", body["result"].(map[string]interface{})["best_score"])

	assert.Equal(t, "+Inf", score(math.Inf(1)))
	assert.Equal(t, "NaN", score(math.NaN()))
	assert.Equal(t, 1.5, score(1.5))
}

func TestCreateRejectsBadRequests(t *testing.T) {
	_, r := newTestServer(t, &fakeRunner{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"strategy":`},
		{"unknown strategy", `{"strategy":"annealing","evaluator":"./m","example":"1"}`},
		{"missing evaluator", `{"strategy":"ga","example":"1"}`},
		{"unknown direction", `{"strategy":"ga","evaluator":"./m","example":"1","direction":"up"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, body := doJSON(t, r, "POST", "/api/v1/runs", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestUnknownRun(t *testing.T) {
	_, r := newTestServer(t, &fakeRunner{})

	rr, _ := doJSON(t, r, "GET", "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, _ = doJSON(t, r, "DELETE", "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelRun(t *testing.T) {
	srv, r := newTestServer(t, &fakeRunner{release: make(chan struct{})})

	id, err := srv.Start(StartRequest{Strategy: "hybrid", Evaluator: "./m", Example: "x 3"})
	require.NoError(t, err)
	waitStatus(t, srv, id, StatusRunning)

	rr, _ := doJSON(t, r, "DELETE", "/api/v1/runs/"+id, "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
	waitStatus(t, srv, id, StatusCancelled)

	st, err := srv.Status(id)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", st["result"].(map[string]interface{})["termination"])

	rr, _ = doJSON(t, r, "DELETE", "/api/v1/runs/"+id, "")
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestFailedRun(t *testing.T) {
	srv, _ := newTestServer(t, &fakeRunner{err: assert.AnError})

	id, err := srv.Start(StartRequest{Strategy: "1", Evaluator: "./m", Example: "1"})
	require.NoError(t, err)
	waitStatus(t, srv, id, StatusFailed)

	st, err := srv.Status(id)
	require.NoError(t, err)
	assert.Equal(t, assert.AnError.Error(), st["error"])
	assert.NotContains(t, st, "result")
}

func TestMaxRunsQueuesExtraRuns(t *testing.T) {
	release := make(chan struct{})
	cfg := testConfig(t)
	cfg.HTTP.MaxRuns = 1
	srv := NewServer(cfg, testLogger(t), &fakeRunner{release: release})
	defer srv.Close()

	first, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "1"})
	require.NoError(t, err)
	second, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "2"})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		a, b := statusOf(t, srv, first), statusOf(t, srv, second)
		return (a == StatusRunning && b == StatusPending) || (a == StatusPending && b == StatusRunning)
	}, 2*time.Second, 5*time.Millisecond)

	close(release)
	waitStatus(t, srv, first, StatusCompleted)
	waitStatus(t, srv, second, StatusCompleted)
}

func TestCancelPendingRun(t *testing.T) {
	release := make(chan struct{})
	cfg := testConfig(t)
	cfg.HTTP.MaxRuns = 1
	srv := NewServer(cfg, testLogger(t), &fakeRunner{release: release})
	defer srv.Close()

	first, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "1"})
	require.NoError(t, err)
	waitStatus(t, srv, first, StatusRunning)

	second, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "2"})
	require.NoError(t, err)
	require.NoError(t, srv.Cancel(second))
	waitStatus(t, srv, second, StatusCancelled)

	st, err := srv.Status(second)
	require.NoError(t, err)
	assert.NotContains(t, st, "result")

	close(release)
	waitStatus(t, srv, first, StatusCompleted)
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), &fakeRunner{release: make(chan struct{})})

	id, err := srv.Start(StartRequest{Strategy: "ga", Evaluator: "./m", Example: "1"})
	require.NoError(t, err)

	err = srv.Close()
	assert.NoError(t, err, "Close should not return an error")
	assert.Equal(t, StatusCancelled, statusOf(t, srv, id))
}

func rpc(t *testing.T, r http.Handler, body string) map[string]interface{} {
	t.Helper()
	rr, out := doJSON(t, r, "POST", "/rpc", body)
	require.Equal(t, http.StatusOK, rr.Code)
	return out
}

func TestJSONRPCRunLifecycle(t *testing.T) {
	srv, r := newTestServer(t, &fakeRunner{score: 3})

	resp := rpc(t, r, `{"jsonrpc":"2.0","id":1,"method":"run.start","params":[{"strategy":"swarm","evaluator":"./m","example":"a 1"}]}`)
	require.NotContains(t, resp, "error")
	id := resp["result"].(map[string]interface{})["run_id"].(string)
	waitStatus(t, srv, id, StatusCompleted)

	resp = rpc(t, r, `{"jsonrpc":"2.0","id":2,"method":"run.status","params":[{"run_id":"`+id+`"}]}`)
	result := resp["result"].(map[string]interface{})
	assert.Equal(t, StatusCompleted, result["status"])
	assert.Equal(t, float64(2), resp["id"])

	resp = rpc(t, r, `{"jsonrpc":"2.0","id":3,"method":"run.list"}`)
	assert.Len(t, resp["result"], 1)

	resp = rpc(t, r, `{"jsonrpc":"2.0","id":4,"method":"run.cancel","params":[{"run_id":"`+id+`"}]}`)
	assert.Equal(t, float64(rpcConflict), resp["error"].(map[string]interface{})["code"])
}

func TestJSONRPCErrors(t *testing.T) {
	_, r := newTestServer(t, &fakeRunner{})

	tests := []struct {
		name string
		body string
		code int
	}{
		{"parse error", `{`, rpcParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"run.list"}`, rpcInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"optimize"}`, rpcMethodNotFound},
		{"missing params", `{"jsonrpc":"2.0","id":1,"method":"run.start"}`, rpcInvalidParams},
		{"params not an object", `{"jsonrpc":"2.0","id":1,"method":"run.status","params":[7]}`, rpcInvalidParams},
		{"bad strategy", `{"jsonrpc":"2.0","id":1,"method":"run.start","params":[{"strategy":"x","evaluator":"./m"}]}`, rpcInvalidParams},
		{"unknown run", `{"jsonrpc":"2.0","id":1,"method":"run.status","params":[{"run_id":"nope"}]}`, rpcNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpc(t, r, tt.body)
			errObj, ok := resp["error"].(map[string]interface{})
			require.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"])
		})
	}
}

func TestRespondWithError(t *testing.T) {
	var logs bytes.Buffer
	srv := NewServer(testConfig(t), logging.New(logging.DebugLevel, &logs), &fakeRunner{})

	tests := []struct {
		name       string
		code       int
		message    string
		id         interface{}
		expectedID interface{}
		expectCode int
	}{
		{
			name:       "valid error response",
			code:       http.StatusBadRequest,
			message:    "invalid input",
			id:         "123",
			expectedID: "123",
			expectCode: http.StatusOK, // Because respondWithError writes 200 with error in body
		},
		{
			name:       "nil id",
			code:       http.StatusInternalServerError,
			message:    "server error",
			id:         nil,
			expectedID: nil,
			expectCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.respondWithError(rr, tt.code, tt.message, tt.id)

			assert.Equal(t, tt.expectCode, rr.Code, "status code should match")

			var response map[string]interface{}
			err := json.NewDecoder(rr.Body).Decode(&response)
			assert.NoError(t, err, "should decode response body")

			errObj, ok := response["error"].(map[string]interface{})
			assert.True(t, ok, "response should contain error object")
			assert.Equal(t, float64(tt.code), errObj["code"], "error code should match")
			assert.Equal(t, tt.message, errObj["message"], "error message should match")
			assert.Equal(t, tt.expectedID, response["id"], "response ID should match")
		})
	}
	assert.Contains(t, logs.String(), "RPC error")
}

package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/copyleftdev/blackopt/internal/config"
	"github.com/copyleftdev/blackopt/internal/errors"
	"github.com/copyleftdev/blackopt/internal/optimization"
	"github.com/copyleftdev/blackopt/internal/report"
	"github.com/copyleftdev/blackopt/internal/runs"
)

// Logger defines the logging interface used by the server
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
}

// Runner executes one run. *runs.Service implements it.
type Runner interface {
	Run(ctx context.Context, req runs.Request) (*runs.Outcome, error)
}

// Run statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// RunState tracks one run submitted to the server. Fields are guarded by the
// server's mutex.
type RunState struct {
	ID          string
	Status      string
	Request     StartRequest
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Progress    *optimization.Progress
	Record      *report.Record
	Error       string

	cancel context.CancelFunc
}

// StartRequest is the body of POST /api/v1/runs and the params of run.start
type StartRequest struct {
	Strategy  string `json:"strategy"`
	Evaluator string `json:"evaluator"`
	Example   string `json:"example"`
	Direction string `json:"direction,omitempty"`
}

func (r StartRequest) toRun() (runs.Request, error) {
	strategy, err := runs.ParseStrategy(r.Strategy)
	if err != nil {
		return runs.Request{}, err
	}
	direction, err := optimization.ParseDirection(r.Direction)
	if err != nil {
		return runs.Request{}, errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	if r.Evaluator == "" {
		return runs.Request{}, errors.Wrap(errors.ErrInvalidInput, "evaluator is required")
	}
	return runs.Request{
		Strategy:  strategy,
		Command:   r.Evaluator,
		Example:   r.Example,
		Direction: direction,
	}, nil
}

// Server implements the HTTP and JSON-RPC surface for optimization runs.
// Runs execute in the background, at most HTTP.MaxRuns at a time; the rest
// wait as pending.
type Server struct {
	cfg    *config.Config
	logger Logger
	runner Runner
	now    func() time.Time

	runs   map[string]*RunState
	runsMu sync.RWMutex

	slots chan struct{}
	wg    sync.WaitGroup
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger Logger, runner Runner) *Server {
	maxRuns := cfg.HTTP.MaxRuns
	if maxRuns < 1 {
		maxRuns = 1
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		runner: runner,
		now:    time.Now,
		runs:   make(map[string]*RunState),
		slots:  make(chan struct{}, maxRuns),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", s.handleCreate)
		r.Get("/runs", s.handleList)
		r.Get("/runs/{id}", s.handleStatus)
		r.Delete("/runs/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// Start queues a run and returns its id
func (s *Server) Start(req StartRequest) (string, error) {
	runReq, err := req.toRun()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := s.now()
	state := &RunState{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Request:     req,
		StartTime:   now,
		LastUpdated: now,
		cancel:      cancel,
	}

	s.runsMu.Lock()
	s.runs[state.ID] = state
	s.runsMu.Unlock()

	runReq.OnProgress = func(p optimization.Progress) {
		s.runsMu.Lock()
		defer s.runsMu.Unlock()
		state.Progress = &p
		state.LastUpdated = s.now()
	}

	s.wg.Add(1)
	go s.execute(ctx, state, runReq)

	s.logger.Info("Run queued", map[string]interface{}{
		"run_id":   state.ID,
		"strategy": runReq.Strategy.String(),
	})
	return state.ID, nil
}

// execute waits for a free slot, then runs to the end
func (s *Server) execute(ctx context.Context, state *RunState, req runs.Request) {
	defer s.wg.Done()
	defer state.cancel()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.finish(state, nil, nil)
		return
	}

	s.runsMu.Lock()
	state.Status = StatusRunning
	state.LastUpdated = s.now()
	s.runsMu.Unlock()

	out, err := s.runner.Run(ctx, req)
	s.finish(state, out, err)
}

func (s *Server) finish(state *RunState, out *runs.Outcome, err error) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	now := s.now()
	state.EndTime = &now
	state.LastUpdated = now

	switch {
	case err != nil:
		state.Status = StatusFailed
		state.Error = err.Error()
		s.logger.Error("Run failed", map[string]interface{}{
			"run_id": state.ID,
			"error":  err.Error(),
		})
	case out == nil:
		state.Status = StatusCancelled
	default:
		state.Record = &out.Record
		state.Status = StatusCompleted
		if out.Result != nil && out.Result.Termination == optimization.Cancelled {
			state.Status = StatusCancelled
		}
	}
}

// Status returns a snapshot of a run
func (s *Server) Status(id string) (map[string]interface{}, error) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	state, exists := s.runs[id]
	if !exists {
		return nil, errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}
	return snapshot(state), nil
}

// List returns snapshots of every run, oldest first
func (s *Server) List() []map[string]interface{} {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	states := make([]*RunState, 0, len(s.runs))
	for _, st := range s.runs {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].StartTime.Equal(states[j].StartTime) {
			return states[i].ID < states[j].ID
		}
		return states[i].StartTime.Before(states[j].StartTime)
	})

	out := make([]map[string]interface{}, len(states))
	for i, st := range states {
		out[i] = snapshot(st)
	}
	return out
}

// Cancel stops a pending or running run
func (s *Server) Cancel(id string) error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		return errors.Wrapf(errors.ErrNotFound, "run %s", id)
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return errors.Wrapf(errors.ErrConflict, "cannot cancel run with status %s", state.Status)
	}

	state.cancel()
	state.LastUpdated = s.now()

	s.logger.Info("Run cancellation requested", map[string]interface{}{
		"run_id": id,
	})
	return nil
}

// Close cancels every run and waits for them to stop
func (s *Server) Close() error {
	s.runsMu.Lock()
	for _, st := range s.runs {
		st.cancel()
	}
	s.runsMu.Unlock()

	s.wg.Wait()
	return nil
}

func snapshot(state *RunState) map[string]interface{} {
	response := map[string]interface{}{
		"id":          state.ID,
		"status":      state.Status,
		"strategy":    state.Request.Strategy,
		"evaluator":   state.Request.Evaluator,
		"example":     state.Request.Example,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}

	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}

	if p := state.Progress; p != nil {
		response["progress"] = map[string]interface{}{
			"phase":           p.Phase,
			"iteration":       p.Iteration,
			"total":           p.Total,
			"best_score":      score(p.BestScore),
			"evaluations":     p.Evaluations,
			"elapsed_seconds": p.Elapsed.Seconds(),
		}
	}

	if rec := state.Record; rec != nil {
		response["result"] = map[string]interface{}{
			"method":          rec.Method,
			"direction":       rec.Direction,
			"initial":         rec.Initial.String(),
			"final":           rec.Final.String(),
			"best_score":      score(rec.BestScore),
			"evaluations":     rec.Evaluations,
			"elapsed_seconds": rec.Elapsed.Seconds(),
			"termination":     rec.Termination,
		}
	}

	if state.Error != "" {
		response["error"] = state.Error
	}
	return response
}

// score renders infinite sentinels as strings, which JSON numbers cannot hold
func score(f float64) interface{} {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	default:
		return f
	}
}

// JSON-RPC error codes
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
	rpcNotFound       = -32001
	rpcConflict       = -32002
)

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "run.start":
		var params StartRequest
		if err = decodeParams(request.Params, &params); err == nil {
			var id string
			if id, err = s.Start(params); err == nil {
				result = map[string]interface{}{"run_id": id, "status": StatusPending}
			}
		}
	case "run.status":
		var params runIDParams
		if err = decodeParams(request.Params, &params); err == nil {
			result, err = s.Status(params.RunID)
		}
	case "run.cancel":
		var params runIDParams
		if err = decodeParams(request.Params, &params); err == nil {
			if err = s.Cancel(params.RunID); err == nil {
				result = map[string]interface{}{"status": "cancellation requested"}
			}
		}
	case "run.list":
		result = s.List()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		s.respondWithError(w, rpcCode(err), err.Error(), request.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

type runIDParams struct {
	RunID string `json:"run_id"`
}

// decodeParams reads the single object of a positional params list
func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return errors.Wrap(errors.ErrInvalidInput, "invalid parameter format, expected object")
	}
	return nil
}

func rpcCode(err error) int {
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		return rpcInvalidParams
	case errors.Is(err, errors.ErrNotFound):
		return rpcNotFound
	case errors.Is(err, errors.ErrConflict):
		return rpcConflict
	default:
		return rpcServerError
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondJSON(w, errors.HTTPStatus(err), map[string]interface{}{"error": err.Error()})
}

// handleCreate handles POST /api/v1/runs
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondErr(w, errors.Wrapf(errors.ErrInvalidInput, "invalid request body: %v", err))
		return
	}

	id, err := s.Start(req)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+id)
	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"run_id": id,
		"status": StatusPending,
	})
}

// handleList handles GET /api/v1/runs
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": s.List()})
}

// handleStatus handles GET /api/v1/runs/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/runs/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.Cancel(chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{
		"status": "cancellation requested",
	})
}

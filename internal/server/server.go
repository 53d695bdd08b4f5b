package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/copyleftdev/anneal/internal/config"
	apperrors "github.com/copyleftdev/anneal/internal/errors"
	"github.com/copyleftdev/anneal/internal/logging"
	"github.com/copyleftdev/anneal/internal/metrics"
	"github.com/copyleftdev/anneal/internal/optimization"
	"github.com/copyleftdev/anneal/internal/optimization/annealer"
)

var (
	// ErrRunNotFound is returned for unknown run IDs.
	ErrRunNotFound error = apperrors.New("run not found")
	// ErrTooManyRuns is returned when every run slot is busy.
	ErrTooManyRuns error = apperrors.New("too many concurrent runs")
	// ErrRunFinished is returned when cancelling a run that already ended.
	ErrRunFinished error = apperrors.New("run already finished")
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Logger defines the logging interface used by the server.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// RunState tracks one annealing run. Fields are guarded by Server.runsMu.
type RunState struct {
	ID          string
	Status      string
	Problem     string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time
	Annealer    *annealer.Annealer
	Result      *optimization.OptimizationResult
	Error       string

	cancel context.CancelFunc
}

func (s *RunState) terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Server implements the HTTP and JSON-RPC API for annealing runs.
type Server struct {
	cfg          *config.Config
	logger       Logger
	engineLogger *zap.Logger
	metrics      *metrics.Collector

	runs   map[string]*RunState
	runsMu sync.RWMutex
	slots  chan struct{}
	seq    atomic.Uint64
	wg     sync.WaitGroup
}

// Option customises a Server.
type Option func(*Server)

// WithMetrics records every run on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithEngineLogger sets the zap logger handed to the annealing engine.
func WithEngineLogger(l *zap.Logger) Option {
	return func(s *Server) { s.engineLogger = l }
}

// NewServer creates a new server instance with the given config and logger.
func NewServer(cfg *config.Config, logger Logger, opts ...Option) *Server {
	limit := cfg.Annealing.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	s := &Server{
		cfg:          cfg,
		logger:       logger,
		engineLogger: zap.NewNop(),
		runs:         make(map[string]*RunState),
		slots:        make(chan struct{}, limit),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the REST and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/anneal", s.handleStart)
		r.Get("/runs", s.handleList)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/anneal/{id}", s.handleCancel)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// StartRun validates rc and starts it in the background.
func (s *Server) StartRun(rc config.RunConfig) (*RunState, error) {
	id := fmt.Sprintf("run_%d_%d", time.Now().Unix(), s.seq.Add(1))

	opts := annealer.Options{
		Logger:       s.engineLogger.With(zap.String("run_id", id)),
		HistoryLimit: s.cfg.Annealing.HistoryLimit,
		DefaultSeed:  s.cfg.Annealing.DefaultSeed,
	}
	rc.ApplyDefaults()
	if s.metrics != nil {
		opts.Observer = s.metrics.ForRun(rc.Problem.Name)
	}

	a, err := annealer.New(rc, opts)
	if err != nil {
		return nil, err
	}

	select {
	case s.slots <- struct{}{}:
	default:
		return nil, ErrTooManyRuns
	}

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if timeout := s.cfg.Annealing.RunTimeout; timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	}

	now := time.Now()
	state := &RunState{
		ID:          id,
		Status:      StatusPending,
		Problem:     rc.Problem.Name,
		StartTime:   now,
		LastUpdated: now,
		Annealer:    a,
		cancel:      cancel,
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()

	s.logger.Info("Run started", map[string]interface{}{
		"run_id":   id,
		"problem":  rc.Problem.Name,
		"schedule": rc.Schedule.Kind,
	})

	s.wg.Add(1)
	go s.execute(ctx, state)

	return state, nil
}

// execute runs the annealer and records the outcome.
func (s *Server) execute(ctx context.Context, state *RunState) {
	defer s.wg.Done()
	defer func() { <-s.slots }()
	defer state.cancel()

	s.runsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
		state.LastUpdated = time.Now()
	}
	s.runsMu.Unlock()

	result, err := state.Annealer.Optimize(ctx)

	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state.Result = result
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	switch {
	case state.Status == StatusCancelled:
	case err != nil:
		state.Status = StatusFailed
		state.Error = err.Error()
		s.logger.Error("Run failed", map[string]interface{}{
			"run_id": state.ID,
			"error":  err.Error(),
		})
	default:
		state.Status = StatusCompleted
		s.logger.Info("Run completed", map[string]interface{}{
			"run_id":       state.ID,
			"reason":       result.StopReason,
			"iterations":   result.Iterations,
			"best_fitness": result.BestSolution.Value,
		})
	}
}

// CancelRun stops a pending or running run.
func (s *Server) CancelRun(id string) error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	if state.terminal() {
		return apperrors.Wrapf(ErrRunFinished, "run is %s", state.Status).WithOperation("cancel")
	}

	state.Annealer.Stop()
	state.cancel()
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Run cancelled", map[string]interface{}{"run_id": id})
	return nil
}

// RunStatus is the wire form of a RunState.
type RunStatus struct {
	ID         string                           `json:"run_id"`
	Status     string                           `json:"status"`
	Problem    string                           `json:"problem"`
	Progress   float64                          `json:"progress"`
	StartTime  string                           `json:"start_time"`
	EndTime    string                           `json:"end_time,omitempty"`
	LastUpdate string                           `json:"last_update"`
	Current    *annealer.Progress               `json:"current,omitempty"`
	BestSoFar  *optimization.Solution           `json:"current_best,omitempty"`
	Result     *optimization.OptimizationResult `json:"result,omitempty"`
	Error      string                           `json:"error,omitempty"`
}

// Status returns a snapshot of a run.
func (s *Server) Status(id string) (*RunStatus, error) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	state, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return s.snapshot(state, true), nil
}

func (s *Server) snapshot(state *RunState, detailed bool) *RunStatus {
	progress := state.Annealer.Progress()
	out := &RunStatus{
		ID:         state.ID,
		Status:     state.Status,
		Problem:    state.Problem,
		Progress:   progress.Fraction(),
		StartTime:  state.StartTime.Format(time.RFC3339),
		LastUpdate: state.LastUpdated.Format(time.RFC3339),
		Error:      state.Error,
	}
	if state.EndTime != nil {
		out.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if !detailed {
		return out
	}
	out.Current = &progress
	out.BestSoFar = state.Annealer.GetBestSolution()
	out.Result = state.Result
	return out
}

// List returns every known run, oldest first, without results.
func (s *Server) List() []*RunStatus {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	states := make([]*RunState, 0, len(s.runs))
	for _, state := range s.runs {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool {
		if !states[i].StartTime.Equal(states[j].StartTime) {
			return states[i].StartTime.Before(states[j].StartTime)
		}
		return states[i].ID < states[j].ID
	})

	out := make([]*RunStatus, 0, len(states))
	for _, state := range states {
		out = append(out, s.snapshot(state, false))
	}
	return out
}

// Close cancels every unfinished run and waits for them to return.
func (s *Server) Close() error {
	s.runsMu.Lock()
	for _, state := range s.runs {
		if !state.terminal() {
			state.Annealer.Stop()
			state.cancel()
			state.Status = StatusCancelled
		}
	}
	s.runsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handleStart handles POST /api/v1/anneal.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var rc config.RunConfig
	if err := json.NewDecoder(r.Body).Decode(&rc); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	log := s.requestLogger(r)
	state, err := s.StartRun(rc)
	if err != nil {
		log.Warn("Run rejected", map[string]interface{}{"error": err.Error()})
		respondJSON(w, startErrorStatus(err), map[string]string{"error": err.Error()})
		return
	}
	log.Info("Run accepted", map[string]interface{}{"run_id": state.ID})

	respondJSON(w, http.StatusAccepted, map[string]string{
		"run_id": state.ID,
		"status": StatusPending,
	})
}

// startErrorStatus maps a StartRun error to an HTTP status.
func startErrorStatus(err error) int {
	var invalid *optimization.Error
	switch {
	case apperrors.Is(err, ErrTooManyRuns):
		return http.StatusTooManyRequests
	case apperrors.As(err, &invalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleList handles GET /api/v1/runs.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.List())
}

// handleStatus handles GET /api/v1/status/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(chi.URLParam(r, "id"))
	if err != nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleCancel handles DELETE /api/v1/anneal/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.CancelRun(id)
	switch {
	case apperrors.Is(err, ErrRunNotFound):
		respondJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case apperrors.Is(err, ErrRunFinished):
		respondJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		s.requestLogger(r).Info("Run cancellation requested", map[string]interface{}{"run_id": id})
		respondJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
	}
}

// requestLogger returns the request-scoped logger set by logging.Middleware,
// falling back to the server logger.
func (s *Server) requestLogger(r *http.Request) Logger {
	if l, ok := logging.Lookup(r.Context()); ok {
		return l
	}
	return s.logger
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

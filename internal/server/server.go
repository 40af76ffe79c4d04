package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/example/go-light-tts/internal/config"
	"github.com/example/go-light-tts/internal/metrics"
	"github.com/example/go-light-tts/internal/model"
	"github.com/example/go-light-tts/internal/synth"
	"github.com/example/go-light-tts/internal/text"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Synthesizer turns text into a mel spectrogram. *synth.Service implements
// it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, alpha float32) (*synth.Result, error)
	Prepare(ctx context.Context, text string) ([]synth.Chunk, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxAlpha       float32
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	registry       *prometheus.Registry
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		maxAlpha:       10,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes for POST /mel.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxAlpha sets the largest duration scale POST /mel accepts.
func WithMaxAlpha(a float32) Option {
	return func(o *options) { o.maxAlpha = a }
}

// WithWorkers sets the maximum number of requests waiting for or running
// generation. Zero disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegistry exposes reg on GET /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	synth Synthesizer
	opts  options
	sem   *semaphore.Weighted
	log   *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /symbols,
// POST /clean, POST /mel and, with WithRegistry, /metrics.
func NewHandler(synth Synthesizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth: synth,
		opts:  opts,
		log:   opts.logger,
	}
	if opts.workers > 0 {
		h.sem = semaphore.NewWeighted(int64(opts.workers))
	}

	mux := http.NewServeMux()
	mux.Handle("/health", instrument("/health", http.HandlerFunc(h.handleHealth)))
	mux.Handle("/symbols", instrument("/symbols", http.HandlerFunc(h.handleSymbols)))
	mux.Handle("/clean", instrument("/clean", http.HandlerFunc(h.handleClean)))
	mux.Handle("/mel", instrument("/mel", http.HandlerFunc(h.handleMel)))

	if opts.registry != nil {
		mux.Handle("/metrics", metrics.Handler(opts.registry))
	}

	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

func (h *handler) handleSymbols(w http.ResponseWriter, _ *http.Request) {
	syms := text.Symbols()
	out := make([]string, len(syms))

	for i, r := range syms {
		out[i] = string(r)
	}

	writeJSON(w, http.StatusOK, out)
}

type melRequest struct {
	Text  string   `json:"text"`
	Alpha *float32 `json:"alpha,omitempty"`
}

type melResponse struct {
	Frames int64         `json:"frames"`
	Mels   int64         `json:"mels"`
	Data   []float32     `json:"data"`
	Chunks []synth.Chunk `json:"chunks"`
}

type cleanResponse struct {
	Chunks []synth.Chunk `json:"chunks"`
}

// decodeRequest parses and validates a JSON text request, writing the error
// response itself when it fails.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (melRequest, bool) {
	var req melRequest

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return req, false
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return req, false
	}

	if req.Alpha != nil && *req.Alpha <= 0 {
		writeError(w, http.StatusBadRequest, "alpha must be > 0")
		return req, false
	}

	if req.Alpha != nil && *req.Alpha > h.opts.maxAlpha {
		writeError(w, http.StatusUnprocessableEntity,
			fmt.Sprintf("alpha exceeds maximum of %g", h.opts.maxAlpha))
		return req, false
	}

	return req, true
}

func (h *handler) handleClean(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	chunks, err := h.synth.Prepare(r.Context(), req.Text)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, cleanResponse{Chunks: chunks})
}

func (h *handler) handleMel(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	alpha := float32(1)
	if req.Alpha != nil {
		alpha = *req.Alpha
	}

	// Apply per-request timeout; it covers the wait for a worker slot.
	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	// Acquire a worker slot, honouring cancellation while waiting.
	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer h.sem.Release(1)
	}

	metrics.RequestStarted()
	defer metrics.RequestFinished()

	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req.Text, alpha)
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			h.log.WarnContext(r.Context(), "generation timed out",
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusGatewayTimeout, "generation timed out")
			return
		}

		status := statusFor(err)
		if status == http.StatusInternalServerError {
			h.log.ErrorContext(r.Context(), "generation failed",
				slog.Int("text_len", len(req.Text)),
				slog.Int64("duration_ms", durationMS),
				slog.String("error", err.Error()),
			)
		}

		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "generation complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int64("frames", res.Mel.Dim(0)),
		slog.Int("chunks", len(res.Chunks)),
	)

	writeJSON(w, http.StatusOK, melResponse{
		Frames: res.Mel.Dim(0),
		Mels:   res.Mel.Dim(1),
		Data:   res.Mel.RawData(),
		Chunks: res.Chunks,
	})
}

// statusFor maps input-related failures to 422, a missing phonemizer to 503
// and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, text.ErrEmptyText),
		errors.Is(err, synth.ErrNoTokens),
		errors.Is(err, model.ErrNoFrames),
		errors.Is(err, model.ErrTooManyFrames):
		return http.StatusUnprocessableEntity
	case errors.Is(err, text.ErrPhonemizerUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		metrics.RecordRequest(route, strconv.Itoa(rec.status), time.Since(start).Seconds())
	})
}

// ---------------------------------------------------------------------------
// Server lifecycle
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	synth           Synthesizer
	logger          *slog.Logger
	registry        *prometheus.Registry
	shutdownTimeout time.Duration
}

// New returns a server for svc. A nil svc is built from cfg on Start.
func New(cfg config.Config, svc Synthesizer) *Server {
	return &Server{
		cfg:             cfg,
		synth:           svc,
		logger:          slog.Default(),
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the logger for startup and request logs.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// WithRegistry overrides the metrics registry served on /metrics.
func (s *Server) WithRegistry(reg *prometheus.Registry) *Server {
	s.registry = reg
	return s
}

func (s *Server) Start(ctx context.Context) error {
	svc := s.synth
	if svc == nil {
		built, err := synth.NewServiceFromConfig(s.cfg, s.logger)
		if err != nil {
			return fmt.Errorf("initialize synth service: %w", err)
		}
		svc = built
	}

	reg := s.registry
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	h := NewHandler(svc,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithMaxAlpha(float32(s.cfg.Server.MaxAlpha)),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithLogger(s.logger),
		WithRegistry(reg),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that a server answers /health at addr.
func ProbeHTTP(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}

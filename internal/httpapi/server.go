// Package httpapi serves the conversion service over HTTP.
package httpapi

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/service"
)

//go:embed ui/index.html
var uiAssets embed.FS

// multipartOverhead is the allowance above the upload limit for form framing.
const multipartOverhead = 64 << 10

// Server exposes the service API and the browser UI.
type Server struct {
	svc     *service.Service
	limiter *rate.Limiter
	server  *http.Server
}

// NewServer creates a server for svc. Submissions are throttled to
// SubmitRate per second with SubmitBurst headroom; a non-positive rate
// disables throttling.
func NewServer(svc *service.Service) *Server {
	cfg := svc.Config()
	limit := rate.Limit(cfg.SubmitRate)
	if cfg.SubmitRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.SubmitBurst
	if burst < 1 {
		burst = 1
	}
	return &Server{
		svc:     svc,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/speak", s.throttle(s.handleSpeak))
	mux.HandleFunc("POST /api/upload", s.throttle(s.handleUpload))
	mux.HandleFunc("POST /api/url", s.throttle(s.handleURL))
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/download/{id}", s.handleDownload)
	mux.HandleFunc("POST /api/cancel/{id}", s.handleCancel)
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/voices", s.handleVoices)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("POST /api/settings", s.handleSaveSettings)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/diagnostics", s.handleDiagnostics)
	mux.HandleFunc("GET /api/events", s.handleEvents)

	ui, _ := fs.Sub(uiAssets, "ui")
	mux.Handle("GET /", http.FileServerFS(ui))

	return logRequests(mux)
}

// ListenAndServe serves on addr until Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.InfoCF("httpapi", "HTTP server starting", map[string]any{"addr": ln.Addr().String()})
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) throttle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "too many submissions, retry later")
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.DebugCF("httpapi", "Request served", map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		})
	})
}

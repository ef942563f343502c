package listener

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AcousticOdometry/recorder/internal/config"
	"github.com/AcousticOdometry/recorder/internal/device"
	"github.com/AcousticOdometry/recorder/internal/recorder"
)

const shutdownTimeout = 5 * time.Second

// Localhost answers plain text HTTP requests on a local address:
//
//	GET /setup?name=<session>  prepares a session and returns its name
//	GET /start                 starts the prepared session
//	GET /stop                  stops it and returns the session name
type Localhost struct {
	ctrl Controller
	opts Options
}

// NewLocalhost creates the HTTP listener for ctrl.
func NewLocalhost(ctrl Controller, opts Options) *Localhost {
	return &Localhost{ctrl: ctrl, opts: opts}
}

// Handler returns the router with every endpoint mounted.
func (l *Localhost) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if l.opts.RateLimit > 0 {
		r.Use(httprate.Limit(l.opts.RateLimit, time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				writeText(w, http.StatusTooManyRequests, "too many requests")
			}),
		))
	}

	r.Get("/setup", l.handleSetup)
	r.Get("/start", l.handleStart)
	r.Get("/stop", l.handleStop)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

// Listen binds host:port and serves until ctx is cancelled, then shuts the
// server down gracefully.
func (l *Localhost) Listen(ctx context.Context) error {
	host := l.opts.Host
	if host == "" {
		host = getLocalIP()
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(l.opts.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return l.Serve(ctx, ln)
}

// Serve is Listen on an existing listener, which it closes.
func (l *Localhost) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           l.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Listening for remote commands", "url", fmt.Sprintf("http://%s", ln.Addr()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down listener: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("Listener stopped")
	return nil
}

func (l *Localhost) handleSetup(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	slog.Debug("Setup request received", "name", name, "remote", r.RemoteAddr)

	folder, err := l.ctrl.Setup(name)
	if err != nil {
		sendError(w, err, "operation", "setup", "name", name)
		return
	}
	writeText(w, http.StatusOK, filepath.Base(folder))
}

func (l *Localhost) handleStart(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Start request received", "remote", r.RemoteAddr)

	if err := l.ctrl.Start(); err != nil {
		sendError(w, err, "operation", "start")
		return
	}
	writeText(w, http.StatusOK, "Recording started")
}

func (l *Localhost) handleStop(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Stop request received", "remote", r.RemoteAddr)

	folder, err := l.ctrl.Stop()
	if err != nil {
		sendError(w, err, "operation", "stop", "folder", folder)
		return
	}
	writeText(w, http.StatusOK, filepath.Base(folder))
}

// statusFor maps recorder errors to HTTP status codes.
func statusFor(err error) int {
	var construction *config.ConstructionError
	switch {
	case errors.Is(err, recorder.ErrNotSetup), errors.Is(err, fs.ErrExist):
		return http.StatusConflict
	case errors.Is(err, device.ErrUnknownClass),
		errors.Is(err, recorder.ErrInvalidName),
		errors.As(err, &construction):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sendError logs the error and sends it as the response body.
func sendError(w http.ResponseWriter, err error, logContext ...any) {
	status := statusFor(err)
	logFields := append([]any{"error", err, "status_code", status}, logContext...)
	slog.Error("Sending error response to client", logFields...)
	writeText(w, status, err.Error())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprint(w, body)
}

// getLocalIP returns the address used for outbound traffic, so other
// machines on the network can reach the listener.
func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}

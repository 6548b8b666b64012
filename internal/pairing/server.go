package pairing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"serpcompanion/internal/config"
	"serpcompanion/internal/events"
	"serpcompanion/internal/logging"
	"serpcompanion/internal/protocol"
)

// ErrAlreadyRunning is returned when another pairing server holds the lock.
var ErrAlreadyRunning = errors.New("pair server already running")

const loopbackHost = "127.0.0.1"

// Server is the loopback pairing endpoint.
type Server struct {
	cfg       *config.Config
	installer *Installer
	emitter   events.Emitter
	logger    *slog.Logger
}

// NewServer constructs a pairing server that reports its address through
// emitter.
func NewServer(cfg *config.Config, installer *Installer, emitter events.Emitter, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		installer: installer,
		emitter:   emitter,
		logger:    logging.NewComponentLogger(logger, "pair-server"),
	}
}

// Listen binds the first free candidate port on the loopback interface.
func Listen(ports []int) (net.Listener, int, error) {
	var lastErr error
	for _, port := range ports {
		listener, err := net.Listen("tcp", net.JoinHostPort(loopbackHost, strconv.Itoa(port)))
		if err != nil {
			lastErr = err
			continue
		}
		return listener, port, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate ports configured")
	}
	return nil, 0, lastErr
}

// Run serves until ctx is canceled. Resource failures (the lock directory,
// the lock itself, every candidate port) are reported as a
// host.pair_server_failed event and are not errors. A second server returns
// ErrAlreadyRunning after reporting.
func (s *Server) Run(ctx context.Context) error {
	lockPath := s.cfg.PairLockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		s.fail(fmt.Errorf("create lock directory: %w", err), "check permissions on paths.state_dir")
		return nil
	}
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		s.fail(fmt.Errorf("acquire pair lock: %w", err), "check permissions on "+lockPath)
		return nil
	}
	if !ok {
		s.emit(protocol.EventPairServerFailed, protocol.Fields{
			"error": ErrAlreadyRunning.Error(),
			"ports": s.cfg.Pairing.Ports,
		})
		return ErrAlreadyRunning
	}
	defer func() { _ = lock.Unlock() }()

	listener, port, err := Listen(s.cfg.Pairing.Ports)
	if err != nil {
		s.fail(err, "free one of the pairing ports or set pairing.ports")
		return nil
	}
	return s.Serve(ctx, listener, port)
}

func (s *Server) fail(err error, hint string) {
	logging.WarnWithContext(s.logger, "pair server unavailable", "pair_server_failed",
		logging.Error(err),
		logging.Any("ports", s.cfg.Pairing.Ports),
		logging.String(logging.FieldErrorHint, hint),
	)
	s.emit(protocol.EventPairServerFailed, protocol.Fields{
		"error": err.Error(),
		"ports": s.cfg.Pairing.Ports,
	})
}

// Serve handles pairing requests on listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener, port int) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	addr := "http://" + net.JoinHostPort(loopbackHost, strconv.Itoa(port))
	s.emit(protocol.EventPairServer, protocol.Fields{"addr": addr, "port": port})
	s.logger.Info("pair server listening", logging.String("address", addr))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("pair server: %w", err)
	}
}

// Handler returns the pairing routes with permissive CORS headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pair", s.handlePair)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"root":         s.cfg.Paths.Root,
		"bin":          s.cfg.Pairing.ExecutablePath,
		"manifest":     s.cfg.ManifestPath(),
		"manifestPath": s.cfg.ManifestPath(),
	})
}

func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	extID := strings.TrimSpace(r.URL.Query().Get("extId"))
	if extID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": ErrMissingExtensionID.Error()})
		return
	}

	path, err := s.installer.Install(r.Context(), extID)
	if err != nil {
		payload := map[string]any{"ok": false}
		if path != "" {
			payload["manifest"] = path
			payload["error"] = err.Error()
		} else {
			payload["error"] = "pair_failed:" + err.Error()
		}
		s.writeJSON(w, http.StatusInternalServerError, payload)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "manifest": path})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) emit(eventType string, fields protocol.Fields) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(eventType, fields)
}

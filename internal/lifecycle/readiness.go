package lifecycle

// Readiness surface: a readiness JSON file and an optional chi-routed
// HTTP port exposing liveness/readiness/startup probes, plus a
// background watcher that keeps the file in sync with FSM state
// (spec.md §4.5). Grounded on the teacher's go-chi readiness/health
// endpoints pattern (cmd/synnergy/main.go's router wiring).

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

const readinessPollInterval = 500 * time.Millisecond

// ReadinessDoc is the JSON document written to the readiness file
// (spec.md §6).
type ReadinessDoc struct {
	ReadyAt       time.Time         `json:"ready_at"`
	State         string            `json:"state"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Metadata      map[string]string `json:"metadata"`
}

// ReadinessConfig configures the readiness surface (spec.md §6).
type ReadinessConfig struct {
	FileEnabled bool
	FilePath    string
	PortEnabled bool
	Port        int
}

// Readiness owns the readiness file and, optionally, an HTTP server
// exposing the three standard orchestration probes.
type Readiness struct {
	cfg           ReadinessConfig
	fsm           *FSM
	startedAt     time.Time
	operatorReady func() bool

	mu     sync.Mutex
	server *http.Server
	cancel context.CancelFunc
	log    *logrus.Entry
}

// NewReadiness constructs a readiness surface bound to fsm. operatorReady
// reports whether an operator has separately marked the node ready; pass
// a func that always returns true if no such gate is needed.
func NewReadiness(cfg ReadinessConfig, fsm *FSM, startedAt time.Time, operatorReady func() bool) *Readiness {
	if operatorReady == nil {
		operatorReady = func() bool { return true }
	}
	return &Readiness{
		cfg:           cfg,
		fsm:           fsm,
		startedAt:     startedAt,
		operatorReady: operatorReady,
		log:           logrus.WithField("component", "lifecycle.readiness"),
	}
}

func (r *Readiness) liveness() bool { return r.fsm.Current() != Stopped }

func (r *Readiness) readiness() bool {
	return r.fsm.Current() == Active && r.operatorReady()
}

func (r *Readiness) startupComplete() bool { return r.fsm.Current() == Active }

func (r *Readiness) doc() ReadinessDoc {
	return ReadinessDoc{
		ReadyAt:       time.Now().UTC(),
		State:         r.fsm.Current().String(),
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		Metadata:      map[string]string{},
	}
}

// writeFile writes the readiness file under restricted permissions via
// an atomic temp-file/fsync/rename sequence.
func (r *Readiness) writeFile() error {
	if !r.cfg.FileEnabled {
		return nil
	}
	raw, err := json.Marshal(r.doc())
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.cfg.FilePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	tmp := r.cfg.FilePath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, r.cfg.FilePath)
}

// removeFile deletes the readiness file, ignoring a not-exist error.
func (r *Readiness) removeFile() error {
	if !r.cfg.FileEnabled {
		return nil
	}
	err := os.Remove(r.cfg.FilePath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (r *Readiness) router() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		probeResponse(w, r.liveness())
	})
	mux.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		probeResponse(w, r.readiness())
	})
	mux.Get("/startupz", func(w http.ResponseWriter, _ *http.Request) {
		probeResponse(w, r.startupComplete())
	})
	return mux
}

func probeResponse(w http.ResponseWriter, ok bool) {
	if ok {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

// Start writes the initial readiness file (if enabled), opens the
// readiness HTTP port (if enabled), and launches the background watcher
// that keeps the file synced with FSM state transitions.
func (r *Readiness) Start(ctx context.Context) error {
	if err := r.writeFile(); err != nil {
		return fmt.Errorf("lifecycle: write readiness file: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	go r.watch(watchCtx)

	if r.cfg.PortEnabled {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", r.cfg.Port), Handler: r.router()}
		r.mu.Lock()
		r.server = srv
		r.mu.Unlock()
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.log.WithError(err).Error("readiness server stopped unexpectedly")
			}
		}()
	}
	return nil
}

// watch periodically rewrites the readiness file to track FSM state
// until ctx is cancelled.
func (r *Readiness) watch(ctx context.Context) {
	ticker := time.NewTicker(readinessPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.writeFile(); err != nil {
				r.log.WithError(err).Warn("failed to refresh readiness file")
			}
		}
	}
}

// Stop removes the readiness file and shuts down the readiness HTTP
// server, if any (spec.md §4.5 step 6).
func (r *Readiness) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	srv := r.server
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			r.log.WithError(err).Warn("readiness server shutdown failed")
		}
	}
	return r.removeFile()
}

// Package ops serves the operations HTTP endpoint: Prometheus metrics,
// watcher health, manual poll trigger and optional pprof.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volowatch/internal/runtime/supervisor"
	"volowatch/internal/watcher"
	logx "volowatch/pkg/logx"
)

const DefaultAddr = "127.0.0.1:9464"

// Config controls the server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token or enable AllowInsecure.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
	Pprof         bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Watcher is the part of the poller the endpoint reports on and drives.
type Watcher interface {
	State() watcher.State
	LastReport() (watcher.CycleReport, bool)
	Trigger() bool
}

type Server struct {
	w     Watcher
	tasks func() []supervisor.TaskStats

	mu      sync.Mutex
	log     logx.Logger
	cfg     Config
	addr    string
	restart chan struct{}
}

type Option func(*Server)

// WithTasks adds supervisor task stats to /healthz.
func WithTasks(fn func() []supervisor.TaskStats) Option {
	return func(s *Server) { s.tasks = fn }
}

func New(cfg Config, w Watcher, log logx.Logger, opts ...Option) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{w: w, log: log, cfg: cfg, restart: make(chan struct{}, 1)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Addr is the bound listen address while serving, empty otherwise.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Reconfigure applies cfg. A running listener is restarted when the change
// needs it. Safe to call during hot reload.
func (s *Server) Reconfigure(cfg Config) {
	s.mu.Lock()
	prev := s.cfg
	s.cfg = cfg
	s.mu.Unlock()
	if needsRestart(prev, cfg) {
		select {
		case s.restart <- struct{}{}:
		default:
		}
	}
}

func needsRestart(a, b Config) bool {
	return a != b
}

func (s *Server) current() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Serve runs until ctx is done, following Reconfigure. While disabled it
// just waits.
func (s *Server) Serve(ctx context.Context) error {
	for {
		cfg := s.current()
		if !cfg.Enabled {
			select {
			case <-ctx.Done():
				return nil
			case <-s.restart:
				continue
			}
		}
		if err := s.serveOnce(ctx, cfg); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (s *Server) serveOnce(ctx context.Context, cfg Config) error {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		addr = DefaultAddr
	}
	if !cfg.AllowInsecure && cfg.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Error("ops refused to start: non-loopback addr requires token or allow_insecure", logx.String("addr", addr))
		return errors.New("ops: insecure bind")
	}
	if cfg.AllowInsecure && cfg.Token == "" && !IsLoopbackAddr(addr) {
		s.log.Warn("ops running without token on non-loopback addr (insecure)", logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.log.Error("ops listen failed", logx.String("addr", addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.handler(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	s.log.Info("ops started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cfg.Token != ""), logx.Bool("pprof", cfg.Pprof))

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err = <-errc:
	case <-ctx.Done():
	case <-s.restart:
		s.log.Info("ops restarting for new config")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	if err == nil {
		err = <-errc
	}

	s.mu.Lock()
	s.addr = ""
	s.mu.Unlock()
	s.log.Info("ops stopped")

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler returns the endpoint mux for the current config.
func (s *Server) Handler() http.Handler { return s.handler(s.current()) }

func (s *Server) handler(cfg Config) http.Handler {
	wrap := func(h http.HandlerFunc) http.HandlerFunc { return withAuth(cfg.Token, h) }

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", wrap(promhttp.Handler().ServeHTTP))
	mux.HandleFunc("GET /healthz", wrap(s.health))
	mux.HandleFunc("POST /poll", wrap(s.poll))
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", wrap(hpprof.Index))
		mux.HandleFunc("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
		mux.HandleFunc("/debug/pprof/profile", wrap(hpprof.Profile))
		mux.HandleFunc("/debug/pprof/symbol", wrap(hpprof.Symbol))
		mux.HandleFunc("/debug/pprof/trace", wrap(hpprof.Trace))
	}
	return mux
}

type healthBody struct {
	State string                 `json:"state"`
	Last  *watcher.CycleReport   `json:"last_cycle,omitempty"`
	Tasks []supervisor.TaskStats `json:"tasks,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.w.State()
	body := healthBody{State: st.String()}
	if rep, ok := s.w.LastReport(); ok {
		body.Last = &rep
	}
	if s.tasks != nil {
		body.Tasks = s.tasks()
	}
	code := http.StatusOK
	if st == watcher.StateFatal {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func (s *Server) poll(w http.ResponseWriter, _ *http.Request) {
	if s.w.State() == watcher.StateFatal {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "watcher stopped"})
		return
	}
	queued := s.w.Trigger()
	s.log.Info("manual poll requested", logx.Bool("queued", queued))
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func withAuth(token string, h http.HandlerFunc) http.HandlerFunc {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		// Authorization: Bearer <token>, or ?token=<token>.
		if got := r.URL.Query().Get("token"); got != "" {
			if got == tok {
				h(w, r)
				return
			}
			unauthorized(w)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h(w, r)
			return
		}
		unauthorized(w)
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// IsLoopbackAddr reports whether a host:port binds only to loopback. An
// empty host means all interfaces.
func IsLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"volowatch/internal/runtime/supervisor"
	"volowatch/internal/watcher"
	logx "volowatch/pkg/logx"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeWatcher struct {
	state    watcher.State
	last     *watcher.CycleReport
	triggers atomic.Int32
}

func (f *fakeWatcher) State() watcher.State { return f.state }

func (f *fakeWatcher) LastReport() (watcher.CycleReport, bool) {
	if f.last == nil {
		return watcher.CycleReport{}, false
	}
	return *f.last, true
}

func (f *fakeWatcher) Trigger() bool { return f.triggers.Add(1) == 1 }

func get(t *testing.T, h http.Handler, method, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsState(t *testing.T) {
	w := &fakeWatcher{
		state: watcher.StateIdle,
		last:  &watcher.CycleReport{ID: "c1", Outcome: watcher.OutcomeOK, New: 2},
	}
	tasks := func() []supervisor.TaskStats { return []supervisor.TaskStats{{Name: "watcher", Running: true}} }
	h := New(Config{}, w, logx.Nop(), WithTasks(tasks)).Handler()

	rec := get(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		State string `json:"state"`
		Last  struct {
			ID      string `json:"id"`
			Outcome string `json:"outcome"`
			New     int    `json:"new"`
		} `json:"last_cycle"`
		Tasks []supervisor.TaskStats `json:"tasks"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.State != watcher.StateIdle.String() || body.Last.ID != "c1" || body.Last.New != 2 || len(body.Tasks) != 1 {
		t.Fatalf("body = %+v", body)
	}
}

func TestHealthFatalIsUnavailable(t *testing.T) {
	w := &fakeWatcher{state: watcher.StateFatal}
	h := New(Config{}, w, logx.Nop()).Handler()

	if rec := get(t, h, http.MethodGet, "/healthz", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("healthz status = %d, want 503", rec.Code)
	}
	if rec := get(t, h, http.MethodPost, "/poll", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("poll status = %d, want 503", rec.Code)
	}
	if w.triggers.Load() != 0 {
		t.Fatal("fatal watcher must not be triggered")
	}
}

func TestPollTriggers(t *testing.T) {
	w := &fakeWatcher{state: watcher.StateIdle}
	h := New(Config{}, w, logx.Nop()).Handler()

	rec := get(t, h, http.MethodPost, "/poll", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"queued":true`) {
		t.Fatalf("body = %s", rec.Body)
	}
	rec = get(t, h, http.MethodPost, "/poll", nil)
	if !strings.Contains(rec.Body.String(), `"queued":false`) {
		t.Fatalf("second poll body = %s", rec.Body)
	}
	if rec := get(t, h, http.MethodGet, "/poll", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /poll status = %d, want 405", rec.Code)
	}
}

func TestMetricsServed(t *testing.T) {
	h := New(Config{}, &fakeWatcher{}, logx.Nop()).Handler()
	rec := get(t, h, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "volowatch_watcher_state") {
		t.Fatal("watcher metrics not registered on the default registry")
	}
}

func TestAuth(t *testing.T) {
	h := New(Config{Token: "s3cret"}, &fakeWatcher{state: watcher.StateIdle}, logx.Nop()).Handler()

	cases := []struct {
		name   string
		target string
		hdr    map[string]string
		want   int
	}{
		{"missing", "/healthz", nil, http.StatusUnauthorized},
		{"bearer", "/healthz", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusOK},
		{"wrong bearer", "/healthz", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"query", "/healthz?token=s3cret", nil, http.StatusOK},
		{"wrong query beats header", "/healthz?token=x", map[string]string{"Authorization": "Bearer s3cret"}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if rec := get(t, h, http.MethodGet, tc.target, tc.hdr); rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestPprofOptIn(t *testing.T) {
	off := New(Config{}, &fakeWatcher{}, logx.Nop()).Handler()
	if rec := get(t, off, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("pprof disabled status = %d, want 404", rec.Code)
	}
	on := New(Config{Pprof: true}, &fakeWatcher{}, logx.Nop()).Handler()
	if rec := get(t, on, http.MethodGet, "/debug/pprof/", nil); rec.Code != http.StatusOK {
		t.Fatalf("pprof enabled status = %d, want 200", rec.Code)
	}
}

func TestServeLifecycle(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, &fakeWatcher{state: watcher.StateIdle}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	addr := waitAddr(t, s, "")
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	// A config change rebinds.
	s.Reconfigure(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "t"})
	waitAddr(t, s, addr)

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if s.Addr() != "" {
		t.Fatal("addr not cleared after stop")
	}
}

func TestServeRefusesInsecureBind(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, &fakeWatcher{}, logx.Nop())
	if err := s.Serve(context.Background()); err == nil {
		t.Fatal("want error for public bind without token")
	}
}

func TestServeDisabledWaits(t *testing.T) {
	s := New(Config{}, &fakeWatcher{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Serve(ctx); err != nil {
		t.Fatal(err)
	}
}

func waitAddr(t *testing.T, s *Server, not string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a := s.Addr(); a != "" && a != not {
			return a
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("server did not bind")
	return ""
}

func TestIsLoopbackAddr(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"10.0.0.5:9464":  false,
		"garbage":        false,
	}
	for addr, want := range cases {
		if got := IsLoopbackAddr(addr); got != want {
			t.Errorf("IsLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}

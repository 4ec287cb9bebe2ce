package monitor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/metrics"
	"github.com/logpatrol/logpatrol/internal/notify"
	"github.com/logpatrol/logpatrol/internal/offset"
	"github.com/logpatrol/logpatrol/internal/remote"
	"github.com/logpatrol/logpatrol/internal/session"
	"github.com/logpatrol/logpatrol/pkg/types"
)

func testLogger() *logging.Logger {
	return logging.New(logging.Config{Level: "error", Format: "json"})
}

type recordingSink struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSink) Send(_ context.Context, destination, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, destination+": "+message)
	return nil
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// fakeUpstream serves the two-primitive file API for one admin log.
type fakeUpstream struct {
	mu      sync.Mutex
	content string
	fail    bool
	dlDelay time.Duration
}

func (f *fakeUpstream) set(content string) {
	f.mu.Lock()
	f.content = content
	f.mu.Unlock()
}

func (f *fakeUpstream) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/services/svc-1/gameservers/file_server/list", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"status":"success","data":{"entries":[
			{"path":"/games/config/server.ADM","name":"server.ADM","type":"file","size":%d,"modified_at":1756500000}
		]}}`, len(f.content))
	})
	mux.HandleFunc("/services/svc-1/gameservers/file_server/download", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":"success","data":{"token":{"url":"%s/dl","token":"t"}}}`, srv.URL)
	})
	mux.HandleFunc("/dl", func(w http.ResponseWriter, r *http.Request) {
		if f.dlDelay > 0 {
			time.Sleep(f.dlDelay)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		fmt.Fprint(w, f.content)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestMonitor(t *testing.T, baseURL string, sink notify.Sink, feeds []notify.Feed) (*Monitor, *session.Store) {
	t.Helper()

	client, err := remote.NewClient(remote.Config{
		BaseURL:        baseURL,
		RequestTimeout: 2 * time.Second,
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		RatePerSecond:  1000,
		RateBurst:      1000,
	}, remote.StaticCredentials{"svc-1": "token"}, testLogger())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	tracker, err := offset.NewTracker(t.TempDir(), time.Hour, testLogger())
	if err != nil {
		t.Fatalf("NewTracker failed: %v", err)
	}

	store := session.NewStore(session.Config{})
	router := notify.NewRouter(notify.Config{Feeds: feeds}, sink, testLogger())

	mon := newMonitor("svc-1", Config{InterFileDelay: time.Millisecond}, deps{
		client:    client,
		tracker:   tracker,
		store:     store,
		router:    router,
		collector: metrics.NewCollector(),
		tracer:    noop.NewTracerProvider().Tracer("monitor"),
		logger:    testLogger(),
	})
	return mon, store
}

func TestTick_IngestsDeltaAndDispatches(t *testing.T) {
	upstream := &fakeUpstream{}
	upstream.set("12:00:01 | Player \"Alice\" is connected\n")
	srv := upstream.server(t)

	sink := &recordingSink{}
	mon, store := newTestMonitor(t, srv.URL, sink, []notify.Feed{
		{Category: types.CategoryConnection, Destination: "activity"},
	})

	mon.tick()

	if mon.checksCompleted.Load() != 1 {
		t.Errorf("expected 1 completed check, got %d", mon.checksCompleted.Load())
	}
	if mon.eventsProcessed.Load() != 1 {
		t.Errorf("expected 1 event, got %d", mon.eventsProcessed.Load())
	}
	if players := store.CurrentPlayers("svc-1"); len(players) != 1 || players[0].Name != "Alice" {
		t.Errorf("session state not updated: %v", players)
	}
	if sink.count() != 1 {
		t.Errorf("expected 1 dispatch, got %d", sink.count())
	}
}

func TestTick_SecondTickSeesOnlyNewLines(t *testing.T) {
	upstream := &fakeUpstream{}
	first := "12:00:01 | Player \"Alice\" is connected\n"
	upstream.set(first)
	srv := upstream.server(t)

	sink := &recordingSink{}
	mon, _ := newTestMonitor(t, srv.URL, sink, []notify.Feed{
		{Category: types.CategoryConnection, Destination: "activity"},
		{Category: types.CategoryDisconnection, Destination: "activity"},
	})

	mon.tick()
	upstream.set(first + "12:30:00 | Player \"Alice\" has been disconnected\n")
	mon.tick()

	if got := mon.eventsProcessed.Load(); got != 2 {
		t.Errorf("expected 2 events total (no re-reads), got %d", got)
	}
	if sink.count() != 2 {
		t.Errorf("expected 2 dispatches, got %d", sink.count())
	}
}

func TestTick_UnchangedFileProcessesNothing(t *testing.T) {
	upstream := &fakeUpstream{}
	upstream.set("12:00:01 | Player \"Alice\" is connected\n")
	srv := upstream.server(t)

	sink := &recordingSink{}
	mon, _ := newTestMonitor(t, srv.URL, sink, nil)

	mon.tick()
	processed := mon.eventsProcessed.Load()
	mon.tick()

	if got := mon.eventsProcessed.Load(); got != processed {
		t.Errorf("idle tick must not reprocess, got %d then %d", processed, got)
	}
}

func TestTick_FailureRunsUpConsecutiveErrors(t *testing.T) {
	upstream := &fakeUpstream{fail: true}
	srv := upstream.server(t)

	mon, _ := newTestMonitor(t, srv.URL, &recordingSink{}, nil)

	for i := 0; i < 3; i++ {
		mon.tick()
	}

	if mon.consecutiveErrors != 3 {
		t.Errorf("expected 3 consecutive errors, got %d", mon.consecutiveErrors)
	}
	if mon.errorTotal.Load() != 3 {
		t.Errorf("expected 3 total errors, got %d", mon.errorTotal.Load())
	}
}

func TestTick_SuccessResetsConsecutiveErrors(t *testing.T) {
	upstream := &fakeUpstream{fail: true}
	srv := upstream.server(t)

	mon, _ := newTestMonitor(t, srv.URL, &recordingSink{}, nil)

	mon.tick()
	if mon.consecutiveErrors != 1 {
		t.Fatalf("expected 1 consecutive error, got %d", mon.consecutiveErrors)
	}

	upstream.mu.Lock()
	upstream.fail = false
	upstream.content = "12:00:01 | Player \"Alice\" is connected\n"
	upstream.mu.Unlock()

	mon.tick()
	if mon.consecutiveErrors != 0 {
		t.Errorf("success must reset the error run, got %d", mon.consecutiveErrors)
	}
	if mon.errorTotal.Load() != 1 {
		t.Errorf("total errors must be cumulative, got %d", mon.errorTotal.Load())
	}
}

func TestStop_InFlightTickCompletes(t *testing.T) {
	upstream := &fakeUpstream{dlDelay: 150 * time.Millisecond}
	upstream.set("12:00:01 | Player \"Alice\" is connected\n")
	srv := upstream.server(t)

	mon, store := newTestMonitor(t, srv.URL, &recordingSink{}, nil)
	mon.config.Interval = 10 * time.Millisecond
	mon.start()

	// Let the first tick get into its slow download, then stop.
	time.Sleep(50 * time.Millisecond)
	mon.stop()

	if got := mon.errorTotal.Load(); got != 0 {
		t.Errorf("clean stop must not record errors, got %d", got)
	}
	if got := mon.eventsProcessed.Load(); got != 1 {
		t.Errorf("in-flight tick must complete, got %d events", got)
	}
	if players := store.CurrentPlayers("svc-1"); len(players) != 1 {
		t.Errorf("session state must reflect the completed tick: %v", players)
	}
}

func TestLoop_TripsAtConsecutiveErrorCeiling(t *testing.T) {
	upstream := &fakeUpstream{fail: true}
	srv := upstream.server(t)

	mon, _ := newTestMonitor(t, srv.URL, &recordingSink{}, nil)
	mon.config.Interval = 5 * time.Millisecond
	mon.config.MaxConsecutiveErrors = 3
	mon.start()

	select {
	case <-mon.done:
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not trip")
	}

	if got := State(mon.state.Load()); got != StateTripped {
		t.Errorf("state = %v, want tripped", got)
	}
	status := mon.Status()
	if status.Active {
		t.Error("tripped monitor must report inactive")
	}
	if status.State != "tripped" {
		t.Errorf("status state = %q, want tripped", status.State)
	}
	if got := mon.errorTotal.Load(); got != 3 {
		t.Errorf("expected exactly 3 errors at trip, got %d", got)
	}

	// The loop has exited: no further polling accumulates errors.
	time.Sleep(30 * time.Millisecond)
	if got := mon.errorTotal.Load(); got != 3 {
		t.Errorf("tripped monitor kept polling, errors now %d", got)
	}

	if got := gaugeValue(t, mon.deps.collector.MonitorsActive); got != 0 {
		t.Errorf("active gauge = %v, want 0", got)
	}
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := g.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestConfig_IntervalFloor(t *testing.T) {
	cfg := Config{Interval: 10 * time.Second}
	cfg.applyDefaults()
	if cfg.Interval != MinInterval {
		t.Errorf("interval below the floor must be clamped, got %v", cfg.Interval)
	}

	cfg = Config{Interval: 10 * time.Minute}
	cfg.applyDefaults()
	if cfg.Interval != 10*time.Minute {
		t.Errorf("interval above the floor must be kept, got %v", cfg.Interval)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		kind types.FileKind
	}{
		{"DayZServer_x64.ADM", types.FileKindAdminLog},
		{"server.adm", types.FileKindAdminLog},
		{"DayZServer_x64.RPT", types.FileKindServerReport},
		{"script.log", types.FileKindGeneric},
		{"serverDZ.cfg", types.FileKindGeneric},
	}
	for _, tt := range tests {
		if got := KindOf(tt.name); got != tt.kind {
			t.Errorf("KindOf(%s) = %s, want %s", tt.name, got, tt.kind)
		}
	}
}

func TestSelectFiles_NewestPerKind(t *testing.T) {
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	files := []types.FileMeta{
		{Name: "old.ADM", ModifiedAt: base.Add(-2 * time.Hour)},
		{Name: "new.ADM", ModifiedAt: base},
		{Name: "server.RPT", ModifiedAt: base.Add(-time.Hour)},
		{Name: "notes.txt", ModifiedAt: base.Add(time.Hour)},
	}

	picked := selectFiles(files, 2)
	if len(picked) != 2 {
		t.Fatalf("expected 2 files, got %d", len(picked))
	}
	if picked[0].Name != "new.ADM" {
		t.Errorf("expected newest admin log first, got %s", picked[0].Name)
	}
	if picked[1].Name != "server.RPT" {
		t.Errorf("expected report second, got %s", picked[1].Name)
	}
}

func TestSelectFiles_RespectsMax(t *testing.T) {
	base := time.Now()
	files := []types.FileMeta{
		{Name: "a.ADM", ModifiedAt: base},
		{Name: "b.RPT", ModifiedAt: base},
	}
	if picked := selectFiles(files, 1); len(picked) != 1 {
		t.Errorf("expected 1 file, got %d", len(picked))
	}
}

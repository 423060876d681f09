// internal/monitoring/engine_test.go
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"solarwatch/internal/acquire"
	"solarwatch/internal/config"
	"solarwatch/internal/database"
	"solarwatch/internal/metrics"
	"solarwatch/internal/notifications"
	"solarwatch/internal/status"
)

type fakeStrategy struct {
	name  string
	calls atomic.Int32
	fn    func(site *config.Site) (status.Sample, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Acquire(ctx context.Context, site *config.Site) (status.Sample, error) {
	f.calls.Add(1)
	return f.fn(site)
}

func sampleWith(power float64, age time.Duration) status.Sample {
	at := time.Now().Add(-age)
	return status.Sample{CurrentPowerKW: &power, LastUpdateAt: &at}
}

func apiSite(name string) config.Site {
	return config.Site{
		Name: name, Kind: config.KindGrowattAPI,
		PlantID: 1, TokenEnv: "TEST_TOKEN",
		OnlinePowerThresholdKW: 0.1,
		OfflineAfterMinutes:    10,
		ErrorAfterMinutes:      240,
	}
}

func withLoginFallback(site config.Site) config.Site {
	site.LoginURL = "https://portal.example/login"
	site.UsernameEnv = "TEST_USER"
	site.PasswordEnv = "TEST_PASS"
	site.UserField = "#user"
	site.PassField = "#pass"
	site.SubmitButton = "#submit"
	site.StatusLocator = "#status"
	site.OnlineToken = "operating"
	return site
}

func newTestEngine(t *testing.T, sites []config.Site, dispatcher *notifications.Dispatcher) (*Engine, database.Store) {
	t.Helper()

	store, err := database.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{
		Monitoring: config.MonitoringConfig{
			Interval:           time.Minute,
			APIWorkers:         4,
			BrowserSessions:    2,
			RenewalWarningDays: 5,
		},
		Gateway: config.GatewayConfig{Timeout: 5 * time.Second},
		Sites:   sites,
	}

	engine := &Engine{
		cfg:          cfg,
		store:        store,
		metrics:      metrics.NewCollector(store),
		dispatcher:   dispatcher,
		browserSlots: make(chan struct{}, cfg.Monitoring.BrowserSessions),
	}
	return engine, store
}

func outcomeFor(t *testing.T, outcomes []Outcome, site string) Outcome {
	t.Helper()
	for _, out := range outcomes {
		if out.Site == site {
			return out
		}
	}
	t.Fatalf("no outcome for site %q", site)
	return Outcome{}
}

func TestSweepApiSuccess(t *testing.T) {
	engine, store := newTestEngine(t, []config.Site{apiSite("usina-alfa")}, nil)
	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return sampleWith(4.2, 2*time.Minute), nil
	}}

	outcomes := engine.RunSweep(context.Background())

	out := outcomeFor(t, outcomes, "usina-alfa")
	if out.Err != nil {
		t.Fatalf("outcome error: %v", out.Err)
	}
	if out.New != status.Online {
		t.Errorf("status = %v, want ONLINE", out.New)
	}
	if out.Strategy != "api_poll" {
		t.Errorf("strategy = %q, want api_poll", out.Strategy)
	}
	if out.Previous != nil {
		t.Errorf("first observation has previous %v", *out.Previous)
	}

	state, err := store.GetLast(context.Background(), "usina-alfa")
	if err != nil || state == nil || state.Status != status.Online {
		t.Errorf("persisted state = %+v (err %v), want ONLINE", state, err)
	}
}

func TestTransientAPIErrorFallsBackToBrowser(t *testing.T) {
	site := withLoginFallback(apiSite("usina-alfa"))
	engine, _ := newTestEngine(t, []config.Site{site}, nil)

	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Transient, Op: "poll", Err: errors.New("HTTP 502")}
	}}
	login := &fakeStrategy{name: "browser_login", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{StatusText: "Operating normally"}, nil
	}}
	engine.login = login

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")

	if login.calls.Load() != 1 {
		t.Errorf("login strategy called %d times, want 1", login.calls.Load())
	}
	if out.New != status.Online {
		t.Errorf("status = %v, want ONLINE from page text", out.New)
	}
	if out.Strategy != "browser_login" {
		t.Errorf("strategy = %q, want browser_login", out.Strategy)
	}
}

func TestPermanentAPIErrorSkipsFallback(t *testing.T) {
	site := withLoginFallback(apiSite("usina-alfa"))
	engine, _ := newTestEngine(t, []config.Site{site}, nil)

	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Permanent, Op: "poll", Err: errors.New("invalid token")}
	}}
	login := &fakeStrategy{name: "browser_login", fn: func(*config.Site) (status.Sample, error) {
		t.Error("login fallback must not run after a permanent failure")
		return status.Sample{}, nil
	}}
	engine.login = login

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Error {
		t.Errorf("status = %v, want ERROR", out.New)
	}
}

func TestChainExhaustedKeepsPersistedStatus(t *testing.T) {
	engine, store := newTestEngine(t, []config.Site{apiSite("usina-alfa")}, nil)
	if err := store.Upsert(context.Background(), "usina-alfa", status.Online, time.Now().Add(-5*time.Minute)); err != nil {
		t.Fatal(err)
	}

	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Transient, Op: "poll", Err: errors.New("timeout")}
	}}

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Online {
		t.Errorf("status = %v, want the persisted ONLINE carried forward", out.New)
	}
}

func TestChainExhaustedWithoutHistory(t *testing.T) {
	engine, _ := newTestEngine(t, []config.Site{apiSite("usina-alfa")}, nil)
	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Transient, Op: "poll", Err: errors.New("timeout")}
	}}

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Error {
		t.Errorf("status = %v, want ERROR for a never-seen site", out.New)
	}
}

func TestConfigErrorEndsCycle(t *testing.T) {
	site := withLoginFallback(apiSite("usina-alfa"))
	engine, _ := newTestEngine(t, []config.Site{site}, nil)

	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Config, Op: "resolve token", Err: errors.New("env not set")}
	}}
	login := &fakeStrategy{name: "browser_login", fn: func(*config.Site) (status.Sample, error) {
		t.Error("login fallback must not run after a config failure")
		return status.Sample{}, nil
	}}
	engine.login = login

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Error {
		t.Errorf("status = %v, want ERROR", out.New)
	}
}

func TestPerSiteIsolation(t *testing.T) {
	sites := []config.Site{apiSite("usina-boom"), apiSite("usina-ok")}
	engine, _ := newTestEngine(t, sites, nil)

	engine.api = &fakeStrategy{name: "api_poll", fn: func(site *config.Site) (status.Sample, error) {
		if site.Name == "usina-boom" {
			panic("strategy blew up")
		}
		return sampleWith(2, time.Minute), nil
	}}

	outcomes := engine.RunSweep(context.Background())
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}

	boom := outcomeFor(t, outcomes, "usina-boom")
	if boom.Err == nil || !strings.Contains(boom.Err.Error(), "panicked") {
		t.Errorf("panicking site error = %v", boom.Err)
	}

	ok := outcomeFor(t, outcomes, "usina-ok")
	if ok.Err != nil || ok.New != status.Online {
		t.Errorf("healthy site outcome = %+v, one site's panic leaked", ok)
	}
}

func TestBrowserLoginSiteFailure(t *testing.T) {
	site := withLoginFallback(apiSite("usina-alfa"))
	site.Kind = config.KindBrowserLogin
	engine, _ := newTestEngine(t, []config.Site{site}, nil)

	engine.login = &fakeStrategy{name: "browser_login", fn: func(*config.Site) (status.Sample, error) {
		return status.Sample{}, &acquire.Error{Kind: acquire.Permanent, Op: "read status", Err: errors.New("locator missing")}
	}}

	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Error {
		t.Errorf("status = %v, want ERROR", out.New)
	}
	if out.Strategy != "browser_login" {
		t.Errorf("strategy = %q", out.Strategy)
	}
}

func TestAlertOnDegradingTransition(t *testing.T) {
	var delivered atomic.Int32
	var lastText string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		lastText = req.Text
		delivered.Add(1)
	}))
	defer gateway.Close()

	t.Setenv("GW_KEY", "k")
	gwCfg := config.GatewayConfig{
		BaseURL: gateway.URL, Instance: "monitor",
		APIKeyEnv: "GW_KEY", Number: "551100000000",
		Timeout: 5 * time.Second,
	}
	dispatcher, err := notifications.NewDispatcher(gwCfg, notifications.NewClient(gwCfg))
	if err != nil {
		t.Fatal(err)
	}

	site := apiSite("usina-alfa")
	site.Contact = "Maria"
	engine, store := newTestEngine(t, []config.Site{site}, dispatcher)

	engine.api = &fakeStrategy{name: "api_poll", fn: func(*config.Site) (status.Sample, error) {
		return sampleWith(0.02, 30*time.Minute), nil
	}}

	// first observation is OFFLINE with no known previous state: no alert
	out := outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.New != status.Offline {
		t.Fatalf("status = %v, want OFFLINE", out.New)
	}
	if out.Alerted || delivered.Load() != 0 {
		t.Error("first observation must not alert")
	}

	// simulate the site having been ONLINE, then degrade again
	if err := store.Upsert(context.Background(), "usina-alfa", status.Online, time.Now()); err != nil {
		t.Fatal(err)
	}
	out = outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if !out.Alerted || delivered.Load() != 1 {
		t.Fatalf("ONLINE -> OFFLINE should alert exactly once, delivered=%d", delivered.Load())
	}
	if !strings.Contains(lastText, "Usina: usina-alfa") || !strings.Contains(lastText, "Maria") {
		t.Errorf("alert text missing site or contact:\n%s", lastText)
	}

	// unchanged status on the next sweep stays quiet
	out = outcomeFor(t, engine.RunSweep(context.Background()), "usina-alfa")
	if out.Alerted || delivered.Load() != 1 {
		t.Error("repeated OFFLINE must not re-alert")
	}
}

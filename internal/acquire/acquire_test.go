// internal/acquire/acquire_test.go
package acquire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solarwatch/internal/config"
	"solarwatch/internal/growatt"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"typed transient", transientErr("op", errors.New("x")), Transient},
		{"typed permanent", permanentErr("op", errors.New("x")), Permanent},
		{"typed config", configErr("op", errors.New("x")), Config},
		{"wrapped typed error", &Error{Kind: Permanent, Op: "outer", Err: permanentErr("inner", nil)}, Permanent},
		{"untyped error", errors.New("context deadline exceeded"), Transient},
		{"cancelled context", context.Canceled, Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func apiPollerFor(url string) *APIPoller {
	return NewAPIPoller(growatt.NewClient(url, 5*time.Second, -3, 1000))
}

func testSite() *config.Site {
	return &config.Site{Name: "usina-teste", Kind: config.KindGrowattAPI, PlantID: 1, TokenEnv: "ACQ_TEST_TOKEN"}
}

func TestAPIPollerMissingToken(t *testing.T) {
	t.Setenv("ACQ_TEST_TOKEN", "")

	_, err := apiPollerFor("http://localhost:1").Acquire(context.Background(), testSite())
	if KindOf(err) != Config {
		t.Errorf("missing token env should be a config failure, got %v", err)
	}
}

func TestAPIPollerErrorClassification(t *testing.T) {
	t.Setenv("ACQ_TEST_TOKEN", "tok")

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    Kind
	}{
		{
			"server fault",
			func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			Transient,
		},
		{
			"rate limited",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error_code":10011,"error_msg":"error_frequently_access"}`))
			},
			Transient,
		},
		{
			"rejected token",
			func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"error_code":10004,"error_msg":"invalid token"}`))
			},
			Permanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			_, err := apiPollerFor(server.URL).Acquire(context.Background(), testSite())
			if err == nil {
				t.Fatal("expected an acquisition error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestAPIPollerTransportFailure(t *testing.T) {
	t.Setenv("ACQ_TEST_TOKEN", "tok")

	// nothing listens here; the connection itself fails
	_, err := apiPollerFor("http://127.0.0.1:1").Acquire(context.Background(), testSite())
	if KindOf(err) != Transient {
		t.Errorf("transport failure should be transient, got %v", err)
	}
}

func TestAPIPollerSuccess(t *testing.T) {
	t.Setenv("ACQ_TEST_TOKEN", "tok")

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error_code":0,"data":{"current_power":"3.2","last_update_time":"2026-03-14 09:00:00"}}`))
	}))
	defer server.Close()

	sample, err := apiPollerFor(server.URL).Acquire(context.Background(), testSite())
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	if sample.CurrentPowerKW == nil || *sample.CurrentPowerKW != 3.2 {
		t.Errorf("current power = %v, want 3.2", sample.CurrentPowerKW)
	}
	if sample.LastUpdateAt == nil {
		t.Error("last update time missing from sample")
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText("  Ligado e Operando \n"); got != "ligado e operando" {
		t.Errorf("normalizeText() = %q", got)
	}
}

package metrics

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SignalsTotal.WithLabelValues("5m", "BUY").Inc()
	m.CandlesTotal.WithLabelValues("5m").Add(3)

	// A second registry must accept a second set.
	New(prometheus.NewRegistry())

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`screener_signals_total{signal="BUY",timeframe="5m"} 1`,
		`screener_candles_total{timeframe="5m"} 3`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus(false, false)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("feed down: code=%d, want 503", rec.Code)
	}

	h.SetFeedConnected(true)
	h.SetPairs([]string{"XBTUSDTM"})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("feed up, optional deps: code=%d, want 200", rec.Code)
	}

	var body struct {
		Status string   `json:"status"`
		Pairs  []string `json:"pairs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || len(body.Pairs) != 1 {
		t.Errorf("unexpected body %+v", body)
	}

	required := NewHealthStatus(true, false)
	required.SetFeedConnected(true)
	rec = httptest.NewRecorder()
	required.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("required redis down: code=%d, want 503", rec.Code)
	}
}

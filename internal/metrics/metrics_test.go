package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthz_DegradedWithoutWS(t *testing.T) {
	h := NewHealthStatus()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 503 {
		t.Errorf("code = %d, want 503 before the stream connects", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestHealthz_HealthyWhenConnected(t *testing.T) {
	h := NewHealthStatus()
	h.SetWSConnected(true)
	h.SetLastCandleTime(time.Now())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	if rec.Code != 200 {
		t.Errorf("code = %d, want 200", rec.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["candle_age"] == "" {
		t.Error("candle_age should be populated")
	}
	// stores were never enabled: they must not count against health
	if body["redis_enabled"] != false || body["sqlite_enabled"] != false {
		t.Errorf("disabled stores reported as enabled: %v", body)
	}
}

func TestHealthz_DisabledStoresDoNotDegrade(t *testing.T) {
	h := NewHealthStatus()
	h.SetWSConnected(true)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != 200 {
		t.Errorf("code = %d, want 200 with stores disabled", rec.Code)
	}
}

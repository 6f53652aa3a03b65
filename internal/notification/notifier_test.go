package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_PostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "analysis", Body: "hello"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["level"] != "INFO" || got["title"] != "analysis" || got["body"] != "hello" {
		t.Errorf("payload = %v", got)
	}
	if got["ts"] == "" {
		t.Error("payload missing timestamp")
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestTelegramNotifier_SendsHTML(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken123/sendMessage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("token123", "chat42")
	n.apiBase = srv.URL

	err := n.Send(context.Background(), Alert{Title: "analysis", Body: "<b>hi</b>"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["chat_id"] != "chat42" || got["text"] != "<b>hi</b>" || got["parse_mode"] != "HTML" {
		t.Errorf("payload = %v", got)
	}
	if got["disable_web_page_preview"] != true {
		t.Error("web page preview should be disabled")
	}
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"ok":false,"description":"Bad Request: chat not found"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("t", "c")
	n.apiBase = srv.URL
	if err := n.Send(context.Background(), Alert{}); err == nil {
		t.Fatal("expected error on API failure")
	}
}

type recordingNotifier struct {
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Send(ctx context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti_FansOutAndSwallowsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	after := &recordingNotifier{}

	m := NewMulti(ok, bad, after)
	if err := m.Send(context.Background(), Alert{Title: "x"}); err != nil {
		t.Fatalf("Multi.Send must not propagate backend errors, got %v", err)
	}

	// the failing backend must not stop the one after it
	if len(ok.alerts) != 1 || len(bad.alerts) != 1 || len(after.alerts) != 1 {
		t.Errorf("deliveries = %d/%d/%d, want 1/1/1", len(ok.alerts), len(bad.alerts), len(after.alerts))
	}
}

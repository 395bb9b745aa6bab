package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTryStart_SendsBearerAndDecodesResponse(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/try-start" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(TryStartResponse{Sample: "not_seen"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Credential: "tok-123"})
	resp, err := c.TryStart(context.Background(), "order-1")
	if err != nil {
		t.Fatalf("TryStart: %v", err)
	}
	if resp.Sample != "not_seen" {
		t.Fatalf("sample = %q", resp.Sample)
	}
	if gotAuth != "Bearer tok-123" {
		t.Fatalf("Authorization header = %q", gotAuth)
	}
}

func TestComplete_PropagatesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "boom"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	err := c.Complete(context.Background(), "order-1")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStatus_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "order-2" {
			t.Fatalf("id query param = %q", r.URL.Query().Get("id"))
		}
		_ = json.NewEncoder(w).Encode(StatusResponse{Status: "started"})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	resp, err := c.Status(context.Background(), "order-2")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if resp.Status != "started" {
		t.Fatalf("status = %q", resp.Status)
	}
}

func TestIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL})
	if !c.IsReachable(context.Background()) {
		t.Fatal("expected reachable")
	}
}

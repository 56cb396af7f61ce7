package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tutorflow/httpapi"
)

func TestNewHTTPServer(t *testing.T) {
	srv := newHTTPServer(9090, http.NotFoundHandler())
	if srv.Addr != ":9090" {
		t.Errorf("expected addr :9090, got %s", srv.Addr)
	}
	if srv.ReadHeaderTimeout != 5*time.Second {
		t.Errorf("expected read header timeout 5s, got %s", srv.ReadHeaderTimeout)
	}
	if srv.Handler == nil {
		t.Errorf("expected handler to be set")
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := httpapi.NewRouter(httpapi.NewHandler(nil, nil, nil, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var payload struct {
		Status string `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "success" || payload.Data.Status != "ok" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestRouter_ProtectedRouteRequiresToken(t *testing.T) {
	router := httpapi.NewRouter(httpapi.NewHandler(nil, nil, nil, nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/requests", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tryandromeda/sitegate/internal/domain"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/docs" {
			t.Errorf("origin saw path %q, want /docs", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>docs</html>"))
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	resp, err := f.Fetch(context.Background(), "/docs")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.Status)
	}
	if string(resp.Body) != "<html>docs</html>" {
		t.Errorf("body = %q", resp.Body)
	}
	if resp.ContentType() != "text/html" {
		t.Errorf("content type = %q, want text/html", resp.ContentType())
	}
	if resp.StoredAt.IsZero() {
		t.Error("StoredAt must be set")
	}
}

func TestFetch_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	resp, err := f.Fetch(context.Background(), "/missing")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.Status)
	}
	if resp.OK() {
		t.Error("OK() must be false for 404")
	}
}

func TestDo_PreservesMethodHeadersAndBody(t *testing.T) {
	var gotMethod, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := New(srv.URL, 2*time.Second)
	header := http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}}
	resp, err := f.Do(context.Background(), http.MethodPost, "/contact",
		header, strings.NewReader("name=andromeda"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Status != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.Status)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("origin saw method %q, want POST", gotMethod)
	}
	if gotBody != "name=andromeda" {
		t.Errorf("origin saw body %q, request body was dropped", gotBody)
	}
	if gotHeader != "application/x-www-form-urlencoded" {
		t.Errorf("origin saw content type %q, header was dropped", gotHeader)
	}
}

func TestFetch_RejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// One byte over the cap; a truncated body replayed with the
		// origin's Content-Length would stall clients.
		_, _ = w.Write(bytes.Repeat([]byte("a"), maxBodyBytes+1))
	}))
	defer srv.Close()

	f := New(srv.URL, 30*time.Second)
	_, err := f.Fetch(context.Background(), "/huge.bin")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable for oversized body", err)
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // dead origin

	f := New(srv.URL, time.Second)
	_, err := f.Fetch(context.Background(), "/")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Errorf("err = %v, want ErrUpstreamUnavailable", err)
	}
}

func TestHealthCheck(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	f := New(srv.URL, time.Second)
	if err := f.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck on healthy origin: %v", err)
	}

	status = http.StatusInternalServerError
	if err := f.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck must fail on a 500 origin")
	}
}

package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHandler(t *testing.T) {
	status := &Status{}
	srv := httptest.NewServer(Handler(status))
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/ok"); code != http.StatusOK || body != "OK" {
		t.Fatalf("GET /ok = %d %q, want 200 OK", code, body)
	}
	if code, _ := get("/other"); code != http.StatusNotFound {
		t.Errorf("GET /other = %d, want 404", code)
	}

	status.Fail("lease lost")
	if code, body := get("/ok"); code != http.StatusInternalServerError || body != "FAIL" {
		t.Fatalf("GET /ok after Fail = %d %q, want 500 FAIL", code, body)
	}
}

func TestHandlerRejectsOtherMethods(t *testing.T) {
	srv := httptest.NewServer(Handler(&Status{}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/ok", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /ok = %d, want 405", resp.StatusCode)
	}
}

func TestStatusFirstReasonWins(t *testing.T) {
	var s Status
	if s.Failed() {
		t.Fatal("zero Status reports failed")
	}
	s.Fail("first")
	s.Fail("second")
	if !s.Failed() || s.Reason() != "first" {
		t.Errorf("Failed() = %v, Reason() = %q", s.Failed(), s.Reason())
	}
}

func TestServerServeAndShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := &Server{Status: &Status{}}
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var addr net.Addr
	select {
	case addr = <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/ok", addr))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /ok = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

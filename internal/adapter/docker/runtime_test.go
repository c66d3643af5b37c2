package docker

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"backendd/internal/inventory"

	"github.com/docker/docker/client"
)

func testRuntime(t *testing.T, handler http.HandlerFunc) *Runtime {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+srv.Listener.Addr().String()),
		client.WithVersion("1.45"),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cli.Close() })
	return NewRuntimeFromClient(cli)
}

func TestListContainers(t *testing.T) {
	var query string
	rt := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/containers/json") {
			http.NotFound(w, r)
			return
		}
		query = r.URL.Query().Get("filters")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"Id": "abcdef0123456789",
				"Labels": {"SERVICE_80": "web"},
				"State": "running",
				"Ports": [
					{"IP": "0.0.0.0", "PrivatePort": 80, "PublicPort": 32000, "Type": "tcp"},
					{"IP": "::", "PrivatePort": 80, "PublicPort": 32000, "Type": "tcp"},
					{"PrivatePort": 443, "Type": "tcp"}
				]
			},
			{"Id": "no-ports", "Labels": {}, "State": "running"}
		]`))
	})

	got, err := rt.ListContainers(t.Context())
	if err != nil {
		t.Fatalf("ListContainers() error = %v", err)
	}
	if !strings.Contains(query, "running") {
		t.Errorf("filters = %q, want status=running", query)
	}

	want := []inventory.Container{
		{
			ID: "abcdef0123456789",
			Ports: []inventory.PortBinding{
				{PrivatePort: 80, PublicPort: 32000, Proto: "tcp"},
				{PrivatePort: 443, PublicPort: 0, Proto: "tcp"},
			},
			Labels: map[string]string{"SERVICE_80": "web"},
		},
		{ID: "no-ports", Ports: []inventory.PortBinding{}, Labels: map[string]string{}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListContainers() =\n%#v\nwant\n%#v", got, want)
	}
}

func TestListContainersAPIError(t *testing.T) {
	rt := testRuntime(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
	})
	if _, err := rt.ListContainers(t.Context()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDedupePorts(t *testing.T) {
	in := []inventory.PortBinding{
		{PrivatePort: 80, PublicPort: 1, Proto: "tcp"},
		{PrivatePort: 80, PublicPort: 1, Proto: "tcp"},
		{PrivatePort: 80, PublicPort: 1, Proto: "udp"},
	}
	if got := dedupePorts(in); len(got) != 2 {
		t.Errorf("dedupePorts() = %v", got)
	}
}

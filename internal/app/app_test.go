package app

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/lyallcooper/treescan/internal/services"
)

func TestBuildVersionString(t *testing.T) {
	tests := []struct {
		version string
		commit  string
		want    string
	}{
		{"v1.2.3", "abcdef1234", "v1.2.3"},
		{"dev", "abcdef1234", "dev-abcdef1"},
		{"dev", "abc", "dev-abc"},
		{"dev", "", "dev-unknown"},
	}

	for _, tt := range tests {
		if got := buildVersionString(tt.version, tt.commit); got != tt.want {
			t.Errorf("buildVersionString(%q, %q) = %q, want %q", tt.version, tt.commit, got, tt.want)
		}
	}
}

func TestNewProcessor(t *testing.T) {
	proc, err := newProcessor("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := proc.(*services.HashProcessor); !ok {
		t.Errorf("expected hash processor, got %T", proc)
	}

	proc, err = newProcessor("sha256sum --tag")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := proc.(*services.CommandProcessor); !ok {
		t.Errorf("expected command processor, got %T", proc)
	}
}

func TestCreateServer(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"TREESCAN_CONFIG", "TREESCAN_DB_DRIVER", "TREESCAN_SCAN_SCHEDULE",
		"TREESCAN_PROCESS_COMMAND", "TREESCAN_RETENTION_DAYS", "TREESCAN_ALLOWED_PATHS", "TREESCAN_SHOW_HIDDEN"} {
		t.Setenv(key, "")
	}
	t.Setenv("TREESCAN_DB_PATH", filepath.Join(t.TempDir(), "treescan.db"))
	t.Setenv("TREESCAN_ROOT", root)

	server, err := CreateServer(ServerConfig{
		Port:        18999,
		Version:     "v0.0.1",
		WebFS:       fstest.MapFS{"static/index.html": {Data: []byte("<html></html>")}},
		BindAddress: "127.0.0.1",
		DisableCSRF: true,
	})
	if err != nil {
		t.Fatalf("CreateServer failed: %v", err)
	}
	defer server.Cleanup()

	if server.HTTP.Addr != "127.0.0.1:18999" {
		t.Errorf("unexpected address %s", server.HTTP.Addr)
	}
	if server.Config.RootPath != root {
		t.Errorf("unexpected root %s", server.Config.RootPath)
	}

	w := httptest.NewRecorder()
	server.HTTP.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scanner/state", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from state endpoint, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	server.HTTP.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 from index, got %d", w.Code)
	}
}

func TestCreateServerInvalidSchedule(t *testing.T) {
	t.Setenv("TREESCAN_CONFIG", "")
	t.Setenv("TREESCAN_DB_PATH", filepath.Join(t.TempDir(), "treescan.db"))
	t.Setenv("TREESCAN_ROOT", t.TempDir())
	t.Setenv("TREESCAN_SCAN_SCHEDULE", "every tuesday")

	if _, err := CreateServer(ServerConfig{WebFS: fstest.MapFS{}}); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

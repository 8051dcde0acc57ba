package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"precache/config"
	"precache/internal/models"
	"precache/internal/precache"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	for _, key := range []string{"PRECACHE_DOWNLOAD_SERVER", "PRECACHE_PLAYLIST", "PRECACHE_DOWNLOAD_DIRECTORY"} {
		t.Setenv(key, "")
	}

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader("\n"))
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func newTempDir(t *testing.T, pattern string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeSettings(t *testing.T, path string, values map[string]string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("[Application]\n")
	for key, value := range values {
		fmt.Fprintf(&b, "%s = %s\n", key, value)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
}

func newPlaylistServer(t *testing.T, playlistStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/movies/playlist.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(playlistStatus)
		io.WriteString(w, `["trailer.mp4", "missing.mp4"]`)
	})
	mux.HandleFunc("/movies/trailer.mp4", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "trailer content")
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestRootCommandDefaultSettings(t *testing.T) {
	server := newPlaylistServer(t, http.StatusOK)
	baseDir := newTempDir(t, "precache-base-*")
	cacheDir := newTempDir(t, "precache-cache-*")
	writeSettings(t, filepath.Join(baseDir, config.DefaultSettingsFile), map[string]string{
		config.KeyDownloadServer:    server.URL + "/movies",
		config.KeyPlaylist:          "playlist.json",
		config.KeyDownloadDirectory: cacheDir,
	})

	out, _, err := executeCommand(t, "--base-dir", baseDir, "--no-pause")
	if err != nil {
		t.Fatalf("precache failed: %v", err)
	}

	for _, want := range []string{`Downloading "trailer.mp4".`, `Downloading "missing.mp4".`, "Successfully downloaded 1 of 2 into cache."} {
		if !strings.Contains(out, want) {
			t.Errorf("Output doesn't contain %q: %s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(cacheDir, "trailer.mp4"))
	if err != nil {
		t.Fatalf("trailer.mp4 not cached: %v", err)
	}
	if string(data) != "trailer content" {
		t.Errorf("trailer.mp4 = %q, want %q", string(data), "trailer content")
	}
}

func TestRootCommandJSON(t *testing.T) {
	server := newPlaylistServer(t, http.StatusOK)
	baseDir := newTempDir(t, "precache-base-*")
	cacheDir := newTempDir(t, "precache-cache-*")
	settings := filepath.Join(baseDir, "friday.ini")
	writeSettings(t, settings, map[string]string{
		config.KeyDownloadServer:    server.URL + "/movies/",
		config.KeyPlaylist:          "playlist.json",
		config.KeyDownloadDirectory: cacheDir,
	})

	out, errOut, err := executeCommand(t, settings, "--json", "--no-pause")
	if err != nil {
		t.Fatalf("precache failed: %v", err)
	}

	var result models.SyncResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("Output is not a JSON summary: %v\n%s", err, out)
	}
	if result.SuccessCount != 1 || result.TotalCount != 2 {
		t.Errorf("summary = %d of %d, want 1 of 2", result.SuccessCount, result.TotalCount)
	}
	if len(result.Failed) != 1 || result.Failed[0] != "missing.mp4" {
		t.Errorf("Failed = %v, want [missing.mp4]", result.Failed)
	}
	if result.RunID == "" {
		t.Errorf("RunID is empty")
	}
	if !strings.Contains(errOut, "Successfully downloaded 1 of 2 into cache.") {
		t.Errorf("progress lines should move to stderr with --json: %s", errOut)
	}
}

func TestRootCommandFatal(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		missing bool
		want    error
	}{
		{"Missing settings file", http.StatusOK, true, config.ErrMissingSettings},
		{"Playlist unavailable", http.StatusNotFound, false, precache.ErrPlaylistUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newPlaylistServer(t, tt.status)
			baseDir := newTempDir(t, "precache-base-*")
			settings := filepath.Join(baseDir, "settings.ini")
			if !tt.missing {
				writeSettings(t, settings, map[string]string{
					config.KeyDownloadServer:    server.URL + "/movies/",
					config.KeyPlaylist:          "playlist.json",
					config.KeyDownloadDirectory: newTempDir(t, "precache-cache-*"),
				})
			}

			_, errOut, err := executeCommand(t, settings, "--no-pause")
			if !errors.Is(err, tt.want) {
				t.Fatalf("precache error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(errOut, "Failed to precache items.") {
				t.Errorf("Error output doesn't contain the failure line: %s", errOut)
			}
			if !strings.Contains(errOut, "Application Installation Directory") {
				t.Errorf("Error output doesn't contain the installation hint: %s", errOut)
			}
		})
	}
}

func TestRootCommandFatalJSON(t *testing.T) {
	baseDir := newTempDir(t, "precache-base-*")

	out, _, err := executeCommand(t, filepath.Join(baseDir, "absent.ini"), "--json", "--no-pause")
	if err == nil {
		t.Fatalf("precache succeeded without settings")
	}

	var resp models.ErrorResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("Output is not a JSON error: %v\n%s", err, out)
	}
	if resp.Command != "precache" {
		t.Errorf("Command = %q, want precache", resp.Command)
	}
	if !strings.Contains(resp.Error, "settings file not found") {
		t.Errorf("Error = %q", resp.Error)
	}
}

func TestRemoteCommandLayersLocalSettings(t *testing.T) {
	server := newPlaylistServer(t, http.StatusOK)
	baseDir := newTempDir(t, "precache-base-*")
	cacheDir := newTempDir(t, "precache-cache-*")

	writeSettings(t, filepath.Join(baseDir, config.DefaultServerSettingsFile), map[string]string{
		config.KeyDownloadServer:    server.URL + "/movies/",
		config.KeyPlaylist:          "playlist.json",
		config.KeyDownloadDirectory: filepath.Join(baseDir, "does-not-exist"),
	})
	writeSettings(t, filepath.Join(baseDir, config.DefaultLocalSettingsFile), map[string]string{
		config.KeyDownloadDirectory: cacheDir,
	})

	out, _, err := executeCommand(t, "remote", "--base-dir", baseDir, "--no-pause")
	if err != nil {
		t.Fatalf("precache remote failed: %v", err)
	}
	if !strings.Contains(out, "Successfully downloaded 1 of 2 into cache.") {
		t.Errorf("Output doesn't contain the summary: %s", out)
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "trailer.mp4")); err != nil {
		t.Errorf("trailer.mp4 not cached in the local directory: %v", err)
	}
}

func TestRemoteCommandBootstrapsLocalSettings(t *testing.T) {
	server := newPlaylistServer(t, http.StatusOK)
	baseDir := newTempDir(t, "precache-base-*")
	writeSettings(t, filepath.Join(baseDir, "server.ini"), map[string]string{
		config.KeyDownloadServer: server.URL + "/movies/",
		config.KeyPlaylist:       "playlist.json",
	})
	local := filepath.Join(baseDir, "local.ini")

	// ./MovieNight does not exist in the package directory, so the run stops
	// at the cache directory check after the bootstrap.
	_, _, err := executeCommand(t, "remote", filepath.Join(baseDir, "server.ini"), "--local-settings", local, "--no-pause")
	if !errors.Is(err, precache.ErrCacheDirectory) {
		t.Fatalf("precache remote error = %v, want ErrCacheDirectory", err)
	}

	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("local settings not created: %v", err)
	}
	if !strings.Contains(string(data), "MovieNight") {
		t.Errorf("local settings = %q, want the default download directory", string(data))
	}
}

func TestPromptOutput(t *testing.T) {
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		resetFlags(rootCmd)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	resetFlags(rootCmd)
	rootCmd.LocalFlags() // merges the persistent flags into Flags()
	if promptOutput(rootCmd) != &out {
		t.Errorf("promptOutput() should be stdout without --json")
	}

	rootCmd.Flags().Set("json", "true")
	if promptOutput(rootCmd) != &errOut {
		t.Errorf("promptOutput() should be stderr with --json")
	}
}

func TestWaitForEnter(t *testing.T) {
	var out bytes.Buffer
	waitForEnter(strings.NewReader("\n"), &out)
	if !strings.Contains(out.String(), "Press enter to exit.") {
		t.Errorf("waitForEnter() output = %q", out.String())
	}
}

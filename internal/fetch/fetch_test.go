package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClientOpen(t *testing.T) {
	var gotAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		switch r.URL.Path {
		case "/ok.mp4":
			w.Write([]byte("movie bytes"))
		case "/moved.mp4":
			w.WriteHeader(http.StatusPartialContent)
			w.Write([]byte("partial"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewHTTPClient(WithUserAgent("precache-test"), WithTimeout(5*time.Second))

	body, err := client.Open(context.Background(), server.URL+"/ok.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "movie bytes" {
		t.Errorf("body = %q, want %q", string(data), "movie bytes")
	}
	if body.Size != int64(len("movie bytes")) {
		t.Errorf("Size = %d, want %d", body.Size, len("movie bytes"))
	}
	if gotAgent != "precache-test" {
		t.Errorf("User-Agent = %q, want %q", gotAgent, "precache-test")
	}

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"Not found", "/missing.mp4", http.StatusNotFound},
		{"Non-200 success", "/moved.mp4", http.StatusPartialContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Open(context.Background(), server.URL+tt.path)
			var se *StatusError
			if !errors.As(err, &se) {
				t.Fatalf("Open() error = %v, want *StatusError", err)
			}
			if StatusCode(err) != tt.status {
				t.Errorf("StatusCode() = %d, want %d", StatusCode(err), tt.status)
			}
		})
	}
}

func TestHTTPClientTransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewHTTPClient().Open(context.Background(), url+"/x.mp4")
	if err == nil {
		t.Fatal("Open() error = nil, want transport error")
	}
	if StatusCode(err) != 0 {
		t.Errorf("StatusCode() = %d, want 0 for transport error", StatusCode(err))
	}
}

func TestMux(t *testing.T) {
	var opened string
	mux := Mux{
		"http": SourceFunc(func(ctx context.Context, target string) (*Body, error) {
			opened = target
			return &Body{ReadCloser: io.NopCloser(strings.NewReader("ok")), Size: 2}, nil
		}),
	}

	body, err := mux.Open(context.Background(), "HTTP://b/x.mp4")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body.Close()
	if opened != "HTTP://b/x.mp4" {
		t.Errorf("opened = %q, want target passed through unchanged", opened)
	}

	if _, err := mux.Open(context.Background(), "s3://bucket/x.mp4"); !errors.Is(err, ErrUnsupportedScheme) {
		t.Errorf("Open() error = %v, want ErrUnsupportedScheme", err)
	}
}

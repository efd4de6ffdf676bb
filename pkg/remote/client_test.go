package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/odvcencio/gitdeps/pkg/manifest"
)

var testPackHash = manifest.HashBytes([]byte("pack"))

func TestPackURL(t *testing.T) {
	tests := []struct {
		name       string
		pack       manifest.TargetPack
		want       string
		shouldFail bool
	}{
		{
			name: "remote path",
			pack: manifest.TargetPack{Hash: testPackHash, BaseURL: "https://cdn.example.com/deps/", RemotePath: "/ab12/"},
			want: "https://cdn.example.com/deps/ab12/" + string(testPackHash),
		},
		{
			name: "no remote path",
			pack: manifest.TargetPack{Hash: testPackHash, BaseURL: "http://host"},
			want: "http://host/" + string(testPackHash),
		},
		{
			name:       "missing base",
			pack:       manifest.TargetPack{Hash: testPackHash},
			shouldFail: true,
		},
		{
			name:       "relative base",
			pack:       manifest.TargetPack{Hash: testPackHash, BaseURL: "cdn/deps"},
			shouldFail: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := PackURL(tc.pack)
			if tc.shouldFail {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("PackURL: %v", err)
			}
			if got != tc.want {
				t.Fatalf("PackURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOpenPackStreamsBody(t *testing.T) {
	var gotPath, gotUser, gotPass, gotAgent string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		gotAgent = r.UserAgent()
		_, _ = w.Write([]byte("compressed pack bytes"))
	}))
	defer ts.Close()

	c, err := NewClient(ClientOptions{UserAgent: "gitdeps-test"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	base := strings.Replace(ts.URL, "http://", "http://builder:s3cret@", 1)
	body, size, err := c.OpenPack(context.Background(), manifest.TargetPack{Hash: testPackHash, BaseURL: base, RemotePath: "pk"})
	if err != nil {
		t.Fatalf("OpenPack: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(data) != "compressed pack bytes" || size != int64(len(data)) {
		t.Fatalf("body = %q size = %d", data, size)
	}
	if gotPath != "/pk/"+string(testPackHash) {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "builder" || gotPass != "s3cret" {
		t.Fatalf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotAgent != "gitdeps-test" {
		t.Fatalf("user agent = %q", gotAgent)
	}
}

func TestOpenPackBearerToken(t *testing.T) {
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer ts.Close()

	c, err := NewClient(ClientOptions{Token: "tok"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	body, _, err := c.OpenPack(context.Background(), manifest.TargetPack{Hash: testPackHash, BaseURL: ts.URL})
	if err != nil {
		t.Fatalf("OpenPack: %v", err)
	}
	body.Close()
	if auth != "Bearer tok" {
		t.Fatalf("Authorization = %q", auth)
	}
}

func TestOpenPackStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such pack", http.StatusNotFound)
	}))
	defer ts.Close()

	c, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	base := strings.Replace(ts.URL, "http://", "http://user:hidden@", 1)
	_, _, err = c.OpenPack(context.Background(), manifest.TargetPack{Hash: testPackHash, BaseURL: base})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if te.StatusCode != http.StatusNotFound {
		t.Fatalf("StatusCode = %d", te.StatusCode)
	}
	if strings.Contains(err.Error(), "hidden") {
		t.Fatalf("error leaks credentials: %v", err)
	}
	if !strings.Contains(err.Error(), "no such pack") {
		t.Fatalf("error lacks server message: %v", err)
	}
}

func TestOpenPackNetworkError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := ts.URL
	ts.Close()

	c, err := NewClient(ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, _, err = c.OpenPack(context.Background(), manifest.TargetPack{Hash: testPackHash, BaseURL: url})
	var te *TransportError
	if !errors.As(err, &te) || te.StatusCode != 0 {
		t.Fatalf("err = %v, want network TransportError", err)
	}
}

func TestOpenPackHonorsIgnoreProxy(t *testing.T) {
	var proxyHits, originHits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		originHits.Add(1)
		_, _ = w.Write([]byte("direct"))
	}))
	defer origin.Close()
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		proxyHits.Add(1)
		_, _ = w.Write([]byte("proxied"))
	}))
	defer proxy.Close()

	c, err := NewClient(ClientOptions{Proxy: proxy.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	read := func(p manifest.TargetPack) string {
		t.Helper()
		body, _, err := c.OpenPack(context.Background(), p)
		if err != nil {
			t.Fatalf("OpenPack: %v", err)
		}
		defer body.Close()
		data, _ := io.ReadAll(body)
		return string(data)
	}

	if got := read(manifest.TargetPack{Hash: testPackHash, BaseURL: origin.URL}); got != "proxied" {
		t.Fatalf("proxied request got %q", got)
	}
	if got := read(manifest.TargetPack{Hash: testPackHash, BaseURL: origin.URL, IgnoreProxy: true}); got != "direct" {
		t.Fatalf("direct request got %q", got)
	}
	if proxyHits.Load() != 1 || originHits.Load() != 1 {
		t.Fatalf("proxy hits = %d, origin hits = %d", proxyHits.Load(), originHits.Load())
	}
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{Proxy: "proxy-without-scheme"}); err == nil {
		t.Fatal("expected error")
	}
}

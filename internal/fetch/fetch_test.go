package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"siteaudit/internal/auditerr"
)

func TestBasicFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("X-Custom", "yes")
		fmt.Fprint(w, "<html><title>ok</title></html>")
	}))
	defer srv.Close()

	res, err := NewClient().Do(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, "yes", res.Headers["x-custom"], "headers are lowercased")
	assert.True(t, res.IsHTML())
	assert.Contains(t, res.Body, "<title>ok</title>")
	assert.Empty(t, res.Chain)
}

func TestRedirectChainRecorded(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			http.Redirect(w, r, "/b", http.StatusMovedPermanently)
		case "/b":
			http.Redirect(w, r, "/final", http.StatusFound)
		default:
			fmt.Fprint(w, "done")
		}
	}))
	defer srv.Close()

	res, err := NewClient().Do(context.Background(), srv.URL+"/a", Options{FollowRedirects: true})
	require.NoError(t, err)
	assert.Equal(t, 200, res.Status)
	assert.Equal(t, srv.URL+"/final", res.FinalURL)
	require.Len(t, res.Chain, 2)
	assert.Equal(t, srv.URL+"/a", res.Chain[0].URL)
	assert.Equal(t, 301, res.Chain[0].Status)
	assert.Equal(t, 302, res.Chain[1].Status)
}

func TestRedirectCapBreach(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	_, err := NewClient().Do(context.Background(), srv.URL, Options{FollowRedirects: true, MaxRedirects: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Exceeded maximum redirect hops")
	assert.Equal(t, auditerr.CodeFetchFailed, auditerr.CodeOf(err))
}

func TestRedirectNotFollowedByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	res, err := NewClient().Do(context.Background(), srv.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, 301, res.Status)
}

func TestDeclaredOversizeShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1048576")
		w.WriteHeader(200)
		w.Write(make([]byte, 1048576))
	}))
	defer srv.Close()

	_, err := NewClient().Do(context.Background(), srv.URL, Options{MaxBytes: 1024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content length")
}

func TestStreamedOversizeAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked response; no declared length.
		f := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			fmt.Fprint(w, strings.Repeat("x", 1024))
			f.Flush()
		}
	}))
	defer srv.Close()

	_, err := NewClient().Do(context.Background(), srv.URL, Options{MaxBytes: 10 * 1024})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded limit")
}

func TestTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient().Do(context.Background(), srv.URL, Options{Timeout: 30 * time.Millisecond})
	require.Error(t, err)
	assert.Equal(t, auditerr.CodeTimeout, auditerr.CodeOf(err))
}

func TestHeaderOverrideMergesOnDefaults(t *testing.T) {
	var gotUA, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
	}))
	defer srv.Close()

	_, err := NewClient().Do(context.Background(), srv.URL, Options{
		Headers: map[string]string{"User-Agent": "custom-agent"},
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-agent", gotUA, "caller override wins")
	assert.Contains(t, gotAccept, "text/html", "untouched defaults survive")
}

func TestInvalidURL(t *testing.T) {
	_, err := NewClient().Do(context.Background(), "http://[::bad", Options{})
	require.Error(t, err)
}

package remotestore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type diskServer struct {
	*httptest.Server
	hrefCalls atomic.Int32
	putCalls  atomic.Int32
	putBody   []byte
	lastAuth  string
	lastPath  string
	hrefCode  func(attempt int32) int
}

func newDiskServer(t *testing.T) *diskServer {
	t.Helper()
	s := &diskServer{hrefCode: func(int32) int { return http.StatusOK }}
	mux := http.NewServeMux()
	mux.HandleFunc("/resources/upload", func(w http.ResponseWriter, r *http.Request) {
		n := s.hrefCalls.Add(1)
		s.lastAuth = r.Header.Get("Authorization")
		s.lastPath = r.URL.Query().Get("path")
		if code := s.hrefCode(n); code != http.StatusOK {
			w.WriteHeader(code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"href": s.URL + "/upload-target"})
	})
	mux.HandleFunc("/upload-target", func(w http.ResponseWriter, r *http.Request) {
		s.putCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		s.putBody = body
		w.WriteHeader(http.StatusCreated)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUpload(t *testing.T) {
	server := newDiskServer(t)
	client := NewDiskClient(server.URL, 5*time.Second)
	local := writeArtifact(t, "%PDF-1.4 plan")

	err := client.Upload(context.Background(), "tok", local, "AI_Tutor/Plan_3.pdf")
	require.NoError(t, err)

	assert.Equal(t, "OAuth tok", server.lastAuth)
	assert.Equal(t, "AI_Tutor/Plan_3.pdf", server.lastPath)
	assert.Equal(t, int32(1), server.putCalls.Load())
	assert.Equal(t, []byte("%PDF-1.4 plan"), server.putBody)
}

func TestUploadRetriesTransientFailure(t *testing.T) {
	server := newDiskServer(t)
	server.hrefCode = func(attempt int32) int {
		if attempt == 1 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}
	client := NewDiskClient(server.URL, 5*time.Second)
	local := writeArtifact(t, "data")

	err := client.Upload(context.Background(), "tok", local, "AI_Tutor/Plan_3.pdf")
	require.NoError(t, err)
	assert.Equal(t, int32(2), server.hrefCalls.Load())
}

func TestUploadBadCredentialNotRetried(t *testing.T) {
	server := newDiskServer(t)
	server.hrefCode = func(int32) int { return http.StatusUnauthorized }
	client := NewDiskClient(server.URL, 5*time.Second)
	local := writeArtifact(t, "data")

	err := client.Upload(context.Background(), "bad", local, "AI_Tutor/Plan_3.pdf")
	require.Error(t, err)
	assert.Equal(t, int32(1), server.hrefCalls.Load(), "auth failures must not retry")
	assert.Equal(t, int32(0), server.putCalls.Load())
}

func TestUploadEmptyHrefNotRetried(t *testing.T) {
	mux := http.NewServeMux()
	var calls atomic.Int32
	mux.HandleFunc("/resources/upload", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewDiskClient(server.URL, 5*time.Second)
	local := writeArtifact(t, "data")

	err := client.Upload(context.Background(), "tok", local, "AI_Tutor/Plan_3.pdf")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadMissingLocalFile(t *testing.T) {
	server := newDiskServer(t)
	client := NewDiskClient(server.URL, 5*time.Second)

	err := client.Upload(context.Background(), "tok", "/nonexistent/doc.pdf", "AI_Tutor/Plan_3.pdf")
	require.Error(t, err)
	assert.Equal(t, int32(0), server.hrefCalls.Load())
}

package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/taxico2/pkg/config"
	"github.com/wonny/taxico2/pkg/logger"
)

func testClient() *Client {
	cfg := &config.Config{Source: config.SourceConfig{FetchTimeout: 5 * time.Second}}
	return New(cfg, logger.Nop())
}

func TestNew(t *testing.T) {
	client := testClient()
	require.NotNil(t, client.httpClient)
	assert.Equal(t, 5*time.Second, client.httpClient.Timeout)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte("PAR1 fake parquet"))
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "nested", "yellow_tripdata_2024-01.parquet")
	n, err := testClient().Download(context.Background(), server.URL, dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len("PAR1 fake parquet")), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PAR1 fake parquet", string(data))

	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestDownloadStatusErrorNoRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "x.parquet")
	_, err := testClient().Download(context.Background(), server.URL, dest)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	_, err = os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestGetDoesNotRetry(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	resp, err := testClient().Get(context.Background(), server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))
		w.Write([]byte(`ok`))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	client.Backoff = time.Millisecond

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad token"))
	}))
	defer server.Close()

	client := NewClient(time.Second)
	client.Backoff = time.Millisecond

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "bad token", se.Body)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetHonorsCancelledContext(t *testing.T) {
	client := NewClient(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Get(ctx, "http://127.0.0.1:1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSingleAttemptClientDoesNotRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewSingleAttemptClient(time.Second).Get(context.Background(), server.URL)
	require.Error(t, err)
	assert.True(t, Retryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&StatusError{Code: http.StatusTooManyRequests}))
	assert.True(t, Retryable(&StatusError{Code: http.StatusBadGateway}))
	assert.False(t, Retryable(&StatusError{Code: http.StatusNotFound}))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(errors.New("decode failed")))
}

package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPImageValidator_Validate(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		switch r.URL.Path {
		case "/ok.jpg":
			w.WriteHeader(http.StatusOK)
		case "/no-content.jpg":
			w.WriteHeader(http.StatusNoContent)
		case "/slow.jpg":
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewImageHTTPClient(5*time.Second, 10, 90*time.Second)
	v := NewHTTPImageValidator(client, 50*time.Millisecond, zap.NewNop())
	ctx := context.Background()

	ok, err := v.Validate(ctx, srv.URL+"/ok.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, http.MethodHead, gotMethod)

	ok, err = v.Validate(ctx, srv.URL+"/no-content.jpg")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Validate(ctx, srv.URL+"/missing.jpg")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = v.Validate(ctx, srv.URL+"/slow.jpg")
	assert.Error(t, err, "per-check timeout should abort slow servers")

	_, err = v.Validate(ctx, "http://[::1]:namedport/x.jpg")
	assert.Error(t, err)
}

func TestNewImageHTTPClient(t *testing.T) {
	c := NewImageHTTPClient(30*time.Second, 10, 90*time.Second)
	assert.Equal(t, 30*time.Second, c.Timeout)

	tr, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 10, tr.MaxIdleConnsPerHost)
	assert.Equal(t, 90*time.Second, tr.IdleConnTimeout)
}

func TestImageValidationError(t *testing.T) {
	inaccessible := &ImageValidationError{Index: 0, URL: "https://img/1.jpg"}
	assert.True(t, inaccessible.Inaccessible())
	assert.Contains(t, inaccessible.Error(), "image url 1")

	cause := context.DeadlineExceeded
	failed := &ImageValidationError{Index: 2, URL: "https://img/3.jpg", Err: cause}
	assert.False(t, failed.Inaccessible())
	assert.ErrorIs(t, failed, cause)
	assert.Contains(t, failed.Error(), "image url 3")
}

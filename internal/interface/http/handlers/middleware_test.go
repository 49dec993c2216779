package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func callWithKey(h http.Handler, header, value string) int {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	auth := NewAPIKeyAuth("", "")
	assert.False(t, auth.Enabled())
	assert.Equal(t, http.StatusNoContent, callWithKey(auth.Middleware(okHandler()), "", ""))
}

func TestAPIKeyAuth_PlainKey(t *testing.T) {
	h := NewAPIKeyAuth("X-API-Key", "s3cret").Middleware(okHandler())

	assert.Equal(t, http.StatusUnauthorized, callWithKey(h, "", ""))
	assert.Equal(t, http.StatusUnauthorized, callWithKey(h, "X-API-Key", "s3cre"))
	assert.Equal(t, http.StatusNoContent, callWithKey(h, "X-API-Key", "s3cret"))
	assert.Equal(t, http.StatusNoContent, callWithKey(h, "Authorization", "Bearer s3cret"))
}

func TestAPIKeyAuth_HashedKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	auth := NewAPIKeyAuth("X-API-Key", string(hash))
	assert.True(t, auth.IsValid("s3cret"))
	assert.False(t, auth.IsValid(string(hash)), "the hash itself is not a valid key")

	h := auth.Middleware(okHandler())
	assert.Equal(t, http.StatusNoContent, callWithKey(h, "X-API-Key", "s3cret"))
	assert.Equal(t, http.StatusUnauthorized, callWithKey(h, "X-API-Key", "wrong"))
}

func TestRequestSizeLimit(t *testing.T) {
	h := RequestSizeLimitMiddleware(8)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"too long"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(mark("outer"), mark("inner"))(okHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestCompositeHealthChecker(t *testing.T) {
	c := NewCompositeHealthChecker("v1")
	c.AddCheck("store", func(context.Context) error { return nil })
	c.AddOptionalCheck("artifact_cache", func(context.Context) error { return errors.New("refused") })

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, "v1", status.Version)
	require.Contains(t, status.Checks, "artifact_cache")
	assert.False(t, status.Checks["artifact_cache"].Healthy)
	assert.True(t, status.Checks["artifact_cache"].Optional)

	c.AddCheck("mail", func(context.Context) error { return errors.New("down") })
	status = c.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, "Some checks failed: mail", status.Message)
}

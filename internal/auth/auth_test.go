package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	k := NewKeys("s3cret", time.Hour)

	tok, exp, err := k.Issue(42, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	c, err := k.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), c.UserID())
	assert.True(t, c.HasRole(RoleAdmin))
	assert.False(t, c.HasRole(RoleBuyer))
}

func TestParseRejectsExpiredAndForeign(t *testing.T) {
	k := NewKeys("s3cret", time.Minute)
	tok, _, err := k.Issue(1, false)
	require.NoError(t, err)

	k.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = k.Parse(tok)
	assert.Error(t, err)

	other := NewKeys("other", time.Minute)
	_, err = other.Parse(tok)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	k := NewKeys("s3cret", time.Hour)
	buyer, _, _ := k.Issue(7, false)
	admin, _, _ := k.Issue(1, true)

	h := k.Authenticate(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Caller(r.Context())
		require.NoError(t, err)
		assert.Equal(t, int64(1), c.UserID())
		w.WriteHeader(http.StatusNoContent)
	})))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"buyer", "Bearer " + buyer, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

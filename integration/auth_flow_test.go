package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthFlow_RegisterLoginRefreshLogout(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	username := UniqueID("gm")
	token, accountID := ts.Signup(t, username)
	require.NotEmpty(t, token)
	require.Positive(t, accountID)

	// Authenticated request works.
	resp := ts.Get(t, "/api/libraries", token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	Drain(resp)

	// Refresh rotates the token; the new one is valid.
	resp = ts.PostJSON(t, "/api/auth/refresh", nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed map[string]interface{}
	ReadJSON(t, resp, &refreshed)
	newToken := refreshed["token"].(string)
	require.NotEmpty(t, newToken)

	resp = ts.Get(t, "/api/libraries", newToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	Drain(resp)

	// Logout invalidates the session.
	resp = ts.PostJSON(t, "/api/auth/logout", nil, newToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	Drain(resp)

	resp = ts.Get(t, "/api/libraries", newToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	Drain(resp)
}

func TestAuthFlow_DuplicateUsername(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	username := UniqueID("gm")
	ts.Signup(t, username)

	resp := ts.PostJSON(t, "/api/auth/register", map[string]string{
		"username": username,
		"password": "otherpass",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	Drain(resp)
}

func TestAuthFlow_WrongPassword(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	username := UniqueID("gm")
	ts.Signup(t, username)

	resp := ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	Drain(resp)
}

func TestAuthFlow_ProtectedRoutesRejectAnonymous(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	for _, path := range []string{"/api/libraries", "/api/libraries/1/encounters"} {
		resp := ts.Get(t, path, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
		Drain(resp)
	}

	// Garbage token is also rejected.
	resp := ts.Get(t, "/api/libraries", "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	Drain(resp)
}

func TestAuthFlow_WSRequiresValidToken(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	req, err := http.NewRequest("GET", ts.URL+"/ws?token=bogus", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	Drain(resp)
}

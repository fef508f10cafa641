package integration

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The SSE endpoint is the fallback for viewers that cannot hold a WebSocket.
func TestSSEFlow_PortalCommandsStream(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	token, _ := ts.Signup(t, UniqueID("gm"))
	libID := ts.CreateLibrary(t, token, "Sunken Citadel")
	portalID := ts.CreatePortal(t, token, libID, "Main Table", nil)

	url := fmt.Sprintf("%s/sse?token=%s&portal=%d", ts.URL, token, portalID)
	req, err := http.NewRequest("GET", url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Give the subscription a moment to attach before publishing.
	time.Sleep(200 * time.Millisecond)
	path := fmt.Sprintf("/api/libraries/%d/portals/%d", libID, portalID)
	putResp := ts.Put(t, path, map[string]interface{}{"currentItem": 2}, token)
	require.Equal(t, http.StatusOK, putResp.StatusCode)
	Drain(putResp)

	// The stream opens with an "event: connected" frame; wait for the first
	// portal-command frame and capture its data line.
	var lastEvent, data string
	deadline := time.After(5 * time.Second)
	for data == "" {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed before event arrived")
			switch {
			case strings.HasPrefix(line, "event: "):
				lastEvent = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: ") && lastEvent == "portal-command":
				data = strings.TrimPrefix(line, "data: ")
			}
		case <-deadline:
			t.Fatal("timed out waiting for SSE event")
		}
	}

	assert.Contains(t, data, broadcast.CmdChangeItem)
}

func TestSSEFlow_RejectsNonMember(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	gmToken, _ := ts.Signup(t, UniqueID("gm"))
	libID := ts.CreateLibrary(t, gmToken, "Sunken Citadel")
	portalID := ts.CreatePortal(t, gmToken, libID, "Main Table", nil)

	strangerToken, _ := ts.Signup(t, UniqueID("stranger"))
	url := fmt.Sprintf("%s/sse?token=%s&portal=%d", ts.URL, strangerToken, portalID)
	resp, err := http.DefaultClient.Get(url)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	Drain(resp)
}

func TestSSEFlow_RejectsBadToken(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	resp, err := http.DefaultClient.Get(ts.URL + "/sse?token=bogus&portal=1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	Drain(resp)
}

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apirest "github.com/hoshizuki/campfire/server/api/rest"
	"github.com/hoshizuki/campfire/server/api/sse"
	apows "github.com/hoshizuki/campfire/server/api/ws"
	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/cache"
	"github.com/hoshizuki/campfire/server/config"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/scheduler"
	"github.com/hoshizuki/campfire/server/testutil"
	"github.com/hoshizuki/campfire/server/version"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with all campaign subsystems wired
// together.
type TestServer struct {
	DB       *gorm.DB
	Cache    cache.Cache
	PubSub   cache.PubSub
	SM       *apows.SessionManager
	Notifier *broadcast.Notifier
	Server   *httptest.Server
	URL      string // http://127.0.0.1:<port>
	WSURL    string // ws://127.0.0.1:<port>/ws
	Sec      config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	syncCfg := config.SyncConfig{MaxPayloadBytes: 65536, MaxPayloadDepth: 16}
	storageCfg := config.StorageConfig{Dir: t.TempDir(), MaxUploadMB: 4}

	// ---- Core Services ----
	versions := version.NewStore()
	notifier := broadcast.NewNotifier(pubsub, logger)
	sm := apows.NewSessionManager(logger)
	sched := scheduler.New(logger)
	t.Cleanup(sched.Stop)

	// ---- WS Router ----
	wsRouter := apows.NewRouter(logger)
	apows.NewPortalFeed(db, pubsub, logger).RegisterRoutes(wsRouter)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes (mirrors main.go) ----
	authH := apirest.NewAuthHandler(db, c, sec)
	libH := apirest.NewLibraryHandler(db, versions, notifier, logger)
	tagH := apirest.NewTagHandler(db, versions)
	itemH := apirest.NewItemHandler(db, versions, syncCfg)
	encH := apirest.NewEncounterHandler(db, notifier, syncCfg, logger)
	portalH := apirest.NewPortalHandler(db, notifier, syncCfg, logger)
	verH := apirest.NewVersionHandler(db, versions)
	fileH := apirest.NewFileHandler(db, storageCfg, logger)
	adminH := apirest.NewAdminHandler(db, sm, sched, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/register", authH.Register)
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(sec, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(sec, c), authH.Refresh)

		authed := api.Group("", mw.Auth(sec, c))

		libsG := authed.Group("/libraries")
		libsG.GET("", libH.List)
		libsG.POST("", libH.Create)
		libsG.GET("/:id", libH.Get)
		libsG.PUT("/:id", libH.Update)
		libsG.DELETE("/:id", libH.Delete)
		libsG.GET("/:id/members", libH.ListMembers)
		libsG.POST("/:id/members", libH.AddMember)
		libsG.PUT("/:id/members/:account_id", libH.UpdateMemberRole)
		libsG.DELETE("/:id/members/:account_id", libH.RemoveMember)

		libsG.GET("/:id/tags", tagH.List)
		libsG.POST("/:id/tags", tagH.Create)
		libsG.PUT("/:id/tags/:tag_id", tagH.Update)
		libsG.DELETE("/:id/tags/:tag_id", tagH.Delete)
		libsG.POST("/:id/tag-folders", tagH.CreateFolder)
		libsG.DELETE("/:id/tag-folders/:folder_id", tagH.DeleteFolder)

		libsG.GET("/:id/items", itemH.List)
		libsG.POST("/:id/items", itemH.Create)
		libsG.GET("/:id/items/:item_id", itemH.Get)
		libsG.PUT("/:id/items/:item_id", itemH.Update)
		libsG.DELETE("/:id/items/:item_id", itemH.Delete)
		libsG.PUT("/:id/items/:item_id/tags", itemH.AssignTags)

		libsG.GET("/:id/encounters", encH.List)
		libsG.POST("/:id/encounters", encH.Create)
		libsG.GET("/:id/encounters/:encounter_id", encH.Get)
		libsG.PUT("/:id/encounters/:encounter_id", encH.Update)
		libsG.DELETE("/:id/encounters/:encounter_id", encH.Delete)

		libsG.GET("/:id/portals", portalH.List)
		libsG.POST("/:id/portals", portalH.Create)
		libsG.GET("/:id/portals/:portal_id", portalH.Get)
		libsG.PUT("/:id/portals/:portal_id", portalH.Update)
		libsG.DELETE("/:id/portals/:portal_id", portalH.Delete)

		libsG.GET("/:id/versions", verH.Get)
		authed.POST("/versions/batch", verH.Batch)

		libsG.GET("/:id/files", fileH.List)
		libsG.POST("/:id/files", fileH.Upload)
		libsG.GET("/:id/files/:file_id", fileH.Download)
		libsG.DELETE("/:id/files/:file_id", fileH.Delete)

		adminG := api.Group("/admin")
		adminG.Use(apirest.AdminAuth("integration-admin-key"))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/viewers", adminH.ListViewers)
		adminG.POST("/kick/:id", adminH.KickViewer)
		adminG.POST("/accounts/:id/ban", adminH.BanAccount)
		adminG.GET("/scheduler", adminH.ListSchedulerTasks)
	}

	// ---- WebSocket ----
	wsH := apows.NewHandler(c, sec, sm, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE fallback ----
	sseH := sse.NewHandler(db, pubsub, c, sec, logger)
	r.GET("/sse", sseH.ServeSSE)

	// ---- Start server ----
	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):] + "/ws"

	return &TestServer{
		DB:       db,
		Cache:    c,
		PubSub:   pubsub,
		SM:       sm,
		Notifier: notifier,
		Server:   server,
		URL:      url,
		WSURL:    wsURL,
		Sec:      sec,
	}
}

// Close shuts down the test server and all viewer sessions.
func (ts *TestServer) Close() {
	ts.SM.CloseAllSessions()
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Put sends a PUT request with JSON body and optional Bearer token.
func (ts *TestServer) Put(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("PUT", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("DELETE", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// Drain closes a response body the caller does not need.
func Drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// --- Auth helpers ---

// Signup registers and logs in a fresh account, returning its token and ID.
func (ts *TestServer) Signup(t *testing.T, username string) (token string, accountID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/auth/register", map[string]string{
		"username": username,
		"password": username + "pass",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	Drain(resp)

	resp = ts.PostJSON(t, "/api/auth/login", map[string]string{
		"username": username,
		"password": username + "pass",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	accountID = int64(result["account_id"].(float64))
	return
}

// CreateLibrary creates a library owned by the token's account and returns its ID.
func (ts *TestServer) CreateLibrary(t *testing.T, token, name string) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/libraries", map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return int64(result["id"].(float64))
}

// CreateEncounter creates a combat encounter and returns its ID.
func (ts *TestServer) CreateEncounter(t *testing.T, token string, libraryID int64, name string) int64 {
	t.Helper()
	path := fmt.Sprintf("/api/libraries/%d/encounters", libraryID)
	resp := ts.PostJSON(t, path, map[string]string{"name": name}, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return int64(result["id"].(float64))
}

// CreatePortal creates a portal view, optionally linked to an encounter,
// and returns its ID.
func (ts *TestServer) CreatePortal(t *testing.T, token string, libraryID int64, name string, encounterID *int64) int64 {
	t.Helper()
	body := map[string]interface{}{"name": name}
	if encounterID != nil {
		body["encounterId"] = *encounterID
	}
	path := fmt.Sprintf("/api/libraries/%d/portals", libraryID)
	resp := ts.PostJSON(t, path, body, token)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	return int64(result["id"].(float64))
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
// Uses a background readLoop so a receive timeout never corrupts the
// connection state.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	seq    uint64
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectWS dials the test server's WS endpoint with the given JWT token.
func (ts *TestServer) ConnectWS(t *testing.T, token string) *WSClient {
	t.Helper()
	url := ts.WSURL + "?token=" + token
	dialer := websocket.Dialer{}
	conn, resp, err := dialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Send writes a JSON message packet to the WebSocket.
func (wc *WSClient) Send(msgType string, payload interface{}) {
	wc.t.Helper()
	seq := atomic.AddUint64(&wc.seq, 1)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(wc.t, err)
	pkt := map[string]interface{}{
		"seq":     seq,
		"type":    msgType,
		"payload": json.RawMessage(payloadJSON),
	}
	data, err := json.Marshal(pkt)
	require.NoError(wc.t, err)
	require.NoError(wc.t, wc.Conn.WriteMessage(websocket.TextMessage, data))
}

// Subscribe subscribes to a portal view's command feed and waits for the ack.
func (wc *WSClient) Subscribe(portalViewID int64) {
	wc.t.Helper()
	wc.Send("subscribe", map[string]int64{"portalViewId": portalViewID})
	wc.RecvType("subscribed", 5*time.Second)
}

// RecvAny reads one message from the WebSocket with a timeout, returning an
// error instead of failing the test.
func (wc *WSClient) RecvAny(timeout time.Duration) (map[string]interface{}, error) {
	select {
	case res := <-wc.readCh:
		if res.err != nil {
			return nil, res.err
		}
		var pkt map[string]interface{}
		if err := json.Unmarshal(res.data, &pkt); err != nil {
			return nil, err
		}
		return pkt, nil
	case <-time.After(timeout):
		return nil, &timeoutError{}
	}
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "read timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

// RecvType reads messages until one with the given type is found (within timeout).
func (wc *WSClient) RecvType(msgType string, timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pkt, err := wc.RecvAny(time.Until(deadline))
		if err != nil {
			wc.t.Fatalf("WS recv failed while waiting for %q: %v", msgType, err)
		}
		if pkt["type"] == msgType {
			return pkt
		}
	}
	wc.t.Fatalf("timed out waiting for message type %q", msgType)
	return nil
}

// ExpectSilence fails the test if any message arrives within the window.
func (wc *WSClient) ExpectSilence(window time.Duration) {
	wc.t.Helper()
	pkt, err := wc.RecvAny(window)
	if err == nil {
		wc.t.Fatalf("unexpected message during silence window: %v", pkt)
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// PayloadMap extracts the payload from a received WS packet as a map.
func PayloadMap(t *testing.T, pkt map[string]interface{}) map[string]interface{} {
	t.Helper()
	p := pkt["payload"]
	if p == nil {
		return map[string]interface{}{}
	}
	m, ok := p.(map[string]interface{})
	require.True(t, ok, "payload is not an object: %v", p)
	return m
}

// CommandOf extracts the command object from a portal-command packet.
func CommandOf(t *testing.T, pkt map[string]interface{}) map[string]interface{} {
	t.Helper()
	payload := PayloadMap(t, pkt)
	cmd, ok := payload["command"].(map[string]interface{})
	require.True(t, ok, "payload has no command object: %v", payload)
	return cmd
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}

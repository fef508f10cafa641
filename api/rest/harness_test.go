package rest_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoshizuki/campfire/server/api/rest"
	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/cache"
	"github.com/hoshizuki/campfire/server/config"
	mw "github.com/hoshizuki/campfire/server/middleware"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/testutil"
	"github.com/hoshizuki/campfire/server/version"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv wires the full REST surface over an in-memory database and a local
// pub/sub, so broadcast side effects are observable in tests.
type testEnv struct {
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	router *gin.Engine
	sec    config.SecurityConfig
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()
	sec := config.SecurityConfig{
		JWTSecret: "test-secret",
		JWTTTLH:   72 * time.Hour,
	}
	syncCfg := config.SyncConfig{MaxPayloadBytes: 65536, MaxPayloadDepth: 16}
	versions := version.NewStore()
	notifier := broadcast.NewNotifier(ps, logger)

	authH := rest.NewAuthHandler(db, c, sec)
	libH := rest.NewLibraryHandler(db, versions, notifier, logger)
	tagH := rest.NewTagHandler(db, versions)
	itemH := rest.NewItemHandler(db, versions, syncCfg)
	encH := rest.NewEncounterHandler(db, notifier, syncCfg, logger)
	portalH := rest.NewPortalHandler(db, notifier, syncCfg, logger)
	verH := rest.NewVersionHandler(db, versions)

	r := gin.New()
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)

	authed := r.Group("/api", mw.Auth(sec, c))
	authed.GET("/libraries", libH.List)
	authed.POST("/libraries", libH.Create)
	authed.GET("/libraries/:id", libH.Get)
	authed.PUT("/libraries/:id", libH.Update)
	authed.DELETE("/libraries/:id", libH.Delete)
	authed.GET("/libraries/:id/members", libH.ListMembers)
	authed.POST("/libraries/:id/members", libH.AddMember)
	authed.PUT("/libraries/:id/members/:account_id", libH.UpdateMemberRole)
	authed.DELETE("/libraries/:id/members/:account_id", libH.RemoveMember)

	authed.GET("/libraries/:id/tags", tagH.List)
	authed.POST("/libraries/:id/tags", tagH.Create)
	authed.PUT("/libraries/:id/tags/:tag_id", tagH.Update)
	authed.DELETE("/libraries/:id/tags/:tag_id", tagH.Delete)
	authed.POST("/libraries/:id/tag-folders", tagH.CreateFolder)
	authed.DELETE("/libraries/:id/tag-folders/:folder_id", tagH.DeleteFolder)

	authed.GET("/libraries/:id/items", itemH.List)
	authed.POST("/libraries/:id/items", itemH.Create)
	authed.GET("/libraries/:id/items/:item_id", itemH.Get)
	authed.PUT("/libraries/:id/items/:item_id", itemH.Update)
	authed.DELETE("/libraries/:id/items/:item_id", itemH.Delete)
	authed.PUT("/libraries/:id/items/:item_id/tags", itemH.AssignTags)

	authed.GET("/libraries/:id/encounters", encH.List)
	authed.POST("/libraries/:id/encounters", encH.Create)
	authed.GET("/libraries/:id/encounters/:encounter_id", encH.Get)
	authed.PUT("/libraries/:id/encounters/:encounter_id", encH.Update)
	authed.DELETE("/libraries/:id/encounters/:encounter_id", encH.Delete)

	authed.GET("/libraries/:id/portals", portalH.List)
	authed.POST("/libraries/:id/portals", portalH.Create)
	authed.GET("/libraries/:id/portals/:portal_id", portalH.Get)
	authed.PUT("/libraries/:id/portals/:portal_id", portalH.Update)
	authed.DELETE("/libraries/:id/portals/:portal_id", portalH.Delete)

	authed.GET("/libraries/:id/versions", verH.Get)
	authed.POST("/versions/batch", verH.Batch)

	return &testEnv{db: db, cache: c, pubsub: ps, router: r, sec: sec}
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// signup registers and logs in a fresh account, returning its token and id.
func (e *testEnv) signup(t *testing.T, username string) (string, int64) {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "password": "pass1234",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "password": "pass1234",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token     string `json:"token"`
		AccountID int64  `json:"account_id"`
	}
	decode(t, w, &resp)
	return resp.Token, resp.AccountID
}

// createLibrary makes a library owned by the token's account.
func (e *testEnv) createLibrary(t *testing.T, token, name string) model.Library {
	t.Helper()
	w := e.request(t, http.MethodPost, "/api/libraries", token, map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var lib model.Library
	decode(t, w, &lib)
	return lib
}

// versionsOf reads the library's counter triple straight from the store.
func (e *testEnv) versionsOf(t *testing.T, libID int64) model.LibraryVersion {
	t.Helper()
	var row model.LibraryVersion
	require.NoError(t, e.db.Where("library_id = ?", libID).First(&row).Error)
	return row
}

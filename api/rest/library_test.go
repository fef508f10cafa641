package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateLibraryMakesOwnerAndVersionRow(t *testing.T) {
	e := newEnv(t)
	token, accountID := e.signup(t, "alice")

	lib := e.createLibrary(t, token, "Curse of Strahd")

	var member model.LibraryMember
	require.NoError(t, e.db.Where("library_id = ? AND account_id = ?", lib.ID, accountID).First(&member).Error)
	assert.Equal(t, model.RoleOwner, member.Role)

	row := e.versionsOf(t, lib.ID)
	assert.Equal(t, int64(1), row.Version)
	assert.Equal(t, int64(1), row.TagsVersion)
	assert.Equal(t, int64(1), row.ItemsVersion)
}

func TestNonMemberGetsNotFoundNotForbidden(t *testing.T) {
	e := newEnv(t)
	ownerToken, _ := e.signup(t, "alice")
	strangerToken, _ := e.signup(t, "mallory")

	lib := e.createLibrary(t, ownerToken, "Private Campaign")

	// Membership is not disclosed: a non-member sees 404, not 403.
	w := e.request(t, http.MethodGet, fmt.Sprintf("/api/libraries/%d", lib.ID), strangerToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewerCannotMutate(t *testing.T) {
	e := newEnv(t)
	ownerToken, _ := e.signup(t, "alice")
	viewerToken, viewerID := e.signup(t, "bob")

	lib := e.createLibrary(t, ownerToken, "Campaign")
	w := e.request(t, http.MethodPost, fmt.Sprintf("/api/libraries/%d/members", lib.ID), ownerToken,
		map[string]interface{}{"accountId": viewerID, "role": "VIEWER"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// Read is fine.
	w = e.request(t, http.MethodGet, fmt.Sprintf("/api/libraries/%d", lib.ID), viewerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Mutation is not.
	w = e.request(t, http.MethodPost, fmt.Sprintf("/api/libraries/%d/encounters", lib.ID), viewerToken,
		map[string]string{"name": "ambush"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLastOwnerCannotBeRemoved(t *testing.T) {
	e := newEnv(t)
	token, accountID := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")

	w := e.request(t, http.MethodDelete,
		fmt.Sprintf("/api/libraries/%d/members/%d", lib.ID, accountID), token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteLibraryCascades(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")

	// Populate one of everything.
	w := e.request(t, http.MethodPost, fmt.Sprintf("/api/libraries/%d/items", lib.ID), token,
		map[string]string{"name": "Sunsword", "kind": "note"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = e.request(t, http.MethodPost, fmt.Sprintf("/api/libraries/%d/encounters", lib.ID), token,
		map[string]string{"name": "ambush"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = e.request(t, http.MethodPost, fmt.Sprintf("/api/libraries/%d/portals", lib.ID), token,
		map[string]string{"name": "table display"})
	require.Equal(t, http.StatusCreated, w.Code)
	var portal model.PortalView
	decode(t, w, &portal)

	// Subscribe to the portal channel to observe the deletion broadcast.
	msgs, cancel, err := e.pubsub.Subscribe(context.Background(), broadcast.Channel(portal.ID))
	require.NoError(t, err)
	defer cancel()

	w = e.request(t, http.MethodDelete, fmt.Sprintf("/api/libraries/%d", lib.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, m := range []interface{}{
		&model.Item{}, &model.CombatEncounter{}, &model.PortalView{},
		&model.LibraryVersion{}, &model.LibraryMember{},
	} {
		var count int64
		require.NoError(t, e.db.Model(m).Where("library_id = ?", lib.ID).Count(&count).Error)
		assert.Zero(t, count, "%T rows must be gone", m)
	}

	select {
	case msg := <-msgs:
		var cmd broadcast.Command
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &cmd))
		assert.Equal(t, broadcast.CmdDeleted, cmd.Command)
	case <-time.After(time.Second):
		t.Fatal("expected deleted broadcast for the portal")
	}
}

package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/hoshizuki/campfire/server/broadcast"
	"github.com/hoshizuki/campfire/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentItemOnlyPatchSendsChangeItem(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")
	portal := e.createPortal(t, token, lib.ID, map[string]interface{}{"name": "table"})

	msgs, cancel := e.subscribe(t, portal.ID)
	defer cancel()

	w := e.request(t, http.MethodPut,
		fmt.Sprintf("/api/libraries/%d/portals/%d", lib.ID, portal.ID), token,
		map[string]int{"currentItem": 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cmd := expectCommand(t, msgs, broadcast.CmdChangeItem)
	require.NotNil(t, cmd.ItemIndex)
	assert.Equal(t, 3, *cmd.ItemIndex)
}

func TestMixedPatchSendsRefetchPortal(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")
	portal := e.createPortal(t, token, lib.ID, map[string]interface{}{"name": "table"})

	msgs, cancel := e.subscribe(t, portal.ID)
	defer cancel()

	// currentItem together with another field is not the fast path.
	w := e.request(t, http.MethodPut,
		fmt.Sprintf("/api/libraries/%d/portals/%d", lib.ID, portal.ID), token,
		map[string]interface{}{"currentItem": 3, "showHealth": true})
	require.Equal(t, http.StatusOK, w.Code)

	cmd := expectCommand(t, msgs, broadcast.CmdRefetchPortal)
	assert.Nil(t, cmd.ItemIndex)
}

func TestLinkRejectsCrossLibraryEncounter(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib1 := e.createLibrary(t, token, "One")
	lib2 := e.createLibrary(t, token, "Two")
	foreign := e.createEncounter(t, token, lib2.ID, "ambush")
	portal := e.createPortal(t, token, lib1.ID, map[string]interface{}{"name": "table"})

	w := e.request(t, http.MethodPut,
		fmt.Sprintf("/api/libraries/%d/portals/%d", lib1.ID, portal.ID), token,
		map[string]interface{}{"encounterId": foreign.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var got model.PortalView
	require.NoError(t, e.db.First(&got, portal.ID).Error)
	assert.Nil(t, got.EncounterID)
}

func TestLinkAndUnlinkEncounter(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")
	enc := e.createEncounter(t, token, lib.ID, "ambush")
	portal := e.createPortal(t, token, lib.ID, map[string]interface{}{"name": "table"})

	path := fmt.Sprintf("/api/libraries/%d/portals/%d", lib.ID, portal.ID)

	w := e.request(t, http.MethodPut, path, token, map[string]interface{}{"encounterId": enc.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got model.PortalView
	decode(t, w, &got)
	require.NotNil(t, got.EncounterID)
	assert.Equal(t, enc.ID, *got.EncounterID)

	// Explicit null unlinks.
	w = e.request(t, http.MethodPut, path, token, map[string]interface{}{"encounterId": nil})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	assert.Nil(t, got.EncounterID)
}

func TestDeletePortalBroadcastsDeleted(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")
	portal := e.createPortal(t, token, lib.ID, map[string]interface{}{"name": "table"})

	msgs, cancel := e.subscribe(t, portal.ID)
	defer cancel()

	w := e.request(t, http.MethodDelete,
		fmt.Sprintf("/api/libraries/%d/portals/%d", lib.ID, portal.ID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	expectCommand(t, msgs, broadcast.CmdDeleted)
}

func TestPortalItemsReplacedWholesale(t *testing.T) {
	e := newEnv(t)
	token, _ := e.signup(t, "alice")
	lib := e.createLibrary(t, token, "Campaign")
	portal := e.createPortal(t, token, lib.ID, map[string]interface{}{
		"name":  "table",
		"items": []map[string]interface{}{{"kind": "note", "title": "one"}, {"kind": "note", "title": "two"}},
	})

	w := e.request(t, http.MethodPut,
		fmt.Sprintf("/api/libraries/%d/portals/%d", lib.ID, portal.ID), token,
		map[string]interface{}{"items": []map[string]interface{}{{"kind": "note", "title": "solo"}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got model.PortalView
	decode(t, w, &got)
	items, err := model.DecodePortalItems(got.Items)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "solo", items[0].Title)
}

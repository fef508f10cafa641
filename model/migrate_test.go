package model_test

import (
	"testing"
	"time"

	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestAutoMigrate_InsertAndQuery(t *testing.T) {
	db := testutil.SetupTestDB(t)

	// Account
	acc := &model.Account{Username: "keeper", PasswordHash: "hash", Status: 1}
	require.NoError(t, db.Create(acc).Error)
	assert.Greater(t, acc.ID, int64(0))

	var found model.Account
	require.NoError(t, db.First(&found, acc.ID).Error)
	assert.Equal(t, "keeper", found.Username)

	// Library + membership
	lib := &model.Library{Name: "Sunken Citadel"}
	require.NoError(t, db.Create(lib).Error)
	assert.Greater(t, lib.ID, int64(0))

	member := &model.LibraryMember{LibraryID: lib.ID, AccountID: acc.ID, Role: model.RoleOwner}
	require.NoError(t, db.Create(member).Error)

	// Version counters
	ver := &model.LibraryVersion{LibraryID: lib.ID, Version: 1, TagsVersion: 1, ItemsVersion: 1}
	require.NoError(t, db.Create(ver).Error)

	// Tag folder + tag
	folder := &model.TagFolder{LibraryID: lib.ID, Name: "NPCs"}
	require.NoError(t, db.Create(folder).Error)

	tag := &model.Tag{LibraryID: lib.ID, FolderID: &folder.ID, Name: "villain", Color: "#aa2222"}
	require.NoError(t, db.Create(tag).Error)

	// Item + item tag
	item := &model.Item{
		LibraryID: lib.ID,
		Name:      "Goblin Chief",
		Kind:      model.ItemKindStatBlock,
		Body:      datatypes.JSON(`{"hp": 21, "ac": 17}`),
	}
	require.NoError(t, db.Create(item).Error)
	require.NoError(t, db.Create(&model.ItemTag{ItemID: item.ID, TagID: tag.ID}).Error)

	// Combat encounter
	enc := &model.CombatEncounter{
		LibraryID:  lib.ID,
		Name:       "Throne Room",
		Round:      1,
		Combatants: datatypes.JSON(`[{"id":"c1","name":"Goblin Chief","initiative":14}]`),
	}
	require.NoError(t, db.Create(enc).Error)

	// Portal view linked to the encounter
	portal := &model.PortalView{
		LibraryID:     lib.ID,
		EncounterID:   &enc.ID,
		Name:          "Main Table",
		ShowEncounter: true,
	}
	require.NoError(t, db.Create(portal).Error)

	var gotPortal model.PortalView
	require.NoError(t, db.First(&gotPortal, portal.ID).Error)
	require.NotNil(t, gotPortal.EncounterID)
	assert.Equal(t, enc.ID, *gotPortal.EncounterID)

	// User file
	file := &model.UserFile{
		LibraryID: lib.ID, Name: "map.png", StoragePath: "/tmp/x.png",
		ContentType: "image/png", SizeBytes: 12, UploadedBy: acc.ID,
	}
	require.NoError(t, db.Create(file).Error)

	// Audit log
	al := &model.AuditLog{
		TraceID: "trace-001", Action: "login",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(al).Error)
}

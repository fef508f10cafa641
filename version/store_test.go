package version_test

import (
	"errors"
	"testing"

	"github.com/hoshizuki/campfire/server/model"
	"github.com/hoshizuki/campfire/server/testutil"
	"github.com/hoshizuki/campfire/server/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReadCreatesRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()

	v, err := store.Read(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Version)
	assert.Equal(t, int64(1), v.TagsVersion)
	assert.Equal(t, int64(1), v.ItemsVersion)
}

func TestBumpThenRead(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()

	before, err := store.Read(db, 1)
	require.NoError(t, err)

	require.NoError(t, store.Bump(db, 1, model.CounterItemsVersion))

	after, err := store.Read(db, 1)
	require.NoError(t, err)
	assert.Equal(t, before.ItemsVersion+1, after.ItemsVersion)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.TagsVersion, after.TagsVersion)

	// Repeated reads without a bump are idempotent.
	again, err := store.Read(db, 1)
	require.NoError(t, err)
	assert.Equal(t, after.ItemsVersion, again.ItemsVersion)
}

func TestBumpCreatesRowThenIncrements(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()

	require.NoError(t, store.Bump(db, 42, model.CounterTagsVersion))

	v, err := store.Read(db, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v.TagsVersion)
	assert.Equal(t, int64(1), v.Version)
	assert.Equal(t, int64(1), v.ItemsVersion)
}

func TestBumpUnknownCounter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()
	assert.Error(t, store.Bump(db, 1, "bogus"))
}

func TestBumpRollsBackWithTransaction(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()

	_, err := store.Read(db, 1)
	require.NoError(t, err)

	sentinel := errors.New("content write failed")
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := store.Bump(tx, 1, model.CounterItemsVersion); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	v, err := store.Read(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.ItemsVersion, "bump must not survive a rolled-back transaction")
}

func TestReadBatchMixedExisting(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := version.NewStore()

	// Library 1 has a bumped row; 2 and 3 have none yet.
	require.NoError(t, store.Bump(db, 1, model.CounterItemsVersion))

	out, err := store.ReadBatch(db, []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, int64(1), out[0].LibraryID)
	assert.Equal(t, int64(2), out[0].ItemsVersion)
	for _, v := range out[1:] {
		assert.Equal(t, int64(1), v.Version)
		assert.Equal(t, int64(1), v.TagsVersion)
		assert.Equal(t, int64(1), v.ItemsVersion)
	}
}

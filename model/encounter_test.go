package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDecodeCombatants_KeepsRawEntry(t *testing.T) {
	raw := datatypes.JSON(`[{"id":"c1","name":"Goblin","initiative":5,"flags":{"hidden":true}}]`)
	list, err := DecodeCombatants(raw)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Goblin", list[0].Name)
	assert.JSONEq(t,
		`{"id":"c1","name":"Goblin","initiative":5,"flags":{"hidden":true}}`,
		string(list[0].Extra))
}

func TestEncodeCombatants_RoundTripKeepsUnknownFields(t *testing.T) {
	raw := datatypes.JSON(`[{"id":"c1","name":"Goblin","initiative":5,"hp":7,"flags":{"hidden":true}}]`)
	list, err := DecodeCombatants(raw)
	require.NoError(t, err)

	out, err := EncodeCombatants(list)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"flags":{"hidden":true}`)
	assert.Contains(t, string(out), `"hp":7`)
}

func TestEncodeCombatants_TypedEditsWinOverRaw(t *testing.T) {
	raw := datatypes.JSON(`[{"id":"c1","name":"Goblin","initiative":5,"hp":7,"flags":{"hidden":true}}]`)
	list, err := DecodeCombatants(raw)
	require.NoError(t, err)
	list[0].HP = 3

	out, err := EncodeCombatants(list)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"hp":3`)
	assert.Contains(t, string(out), `"flags":{"hidden":true}`)
}

func TestSortRawCombatants_OrdersWithoutReshaping(t *testing.T) {
	raw := datatypes.JSON(`[` +
		`{"id":"c2","name":"Sneak","initiative":3,"flags":{"hidden":true}},` +
		`{"id":"c1","name":"Goblin","initiative":5,"morale":"shaky"}` +
		`]`)
	out, err := SortRawCombatants(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `[`+
		`{"id":"c1","name":"Goblin","initiative":5,"morale":"shaky"},`+
		`{"id":"c2","name":"Sneak","initiative":3,"flags":{"hidden":true}}`+
		`]`, string(out))
	// Each entry passes through byte for byte: no injected defaults.
	assert.NotContains(t, string(out), `"hp"`)
}

func TestSortRawCombatants_StableForTies(t *testing.T) {
	raw := datatypes.JSON(`[{"id":"a","initiative":10},{"id":"b","initiative":10},{"id":"c","initiative":12}]`)
	out, err := SortRawCombatants(raw)
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"c","initiative":12},{"id":"a","initiative":10},{"id":"b","initiative":10}]`, string(out))
}

func TestSortRawCombatants_Empty(t *testing.T) {
	out, err := SortRawCombatants(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

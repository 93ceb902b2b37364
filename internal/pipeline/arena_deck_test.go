package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pcrguild/pcrdb-collector/internal/snapshot"
)

func TestExtractDeckFromUnitList(t *testing.T) {
	user := map[string]any{
		"unit_list": []any{
			map[string]any{"unit_id": int64(1001), "rarity": 6, "unit_level": 150, "power": int64(50000)},
			map[string]any{"unit_id": int64(1002), "rarity": 5, "unit_level": 140, "power": int64(40000)},
		},
	}
	deck := extractDeck(user)
	assert.Equal(t, snapshot.DeckSlots{
		{UnitID: 1001, Rarity: 6, Level: 150, Power: 50000},
		{UnitID: 1002, Rarity: 5, Level: 140, Power: 40000},
	}, deck)
}

func TestExtractDeckNoFieldsReturnsNil(t *testing.T) {
	assert.Nil(t, extractDeck(map[string]any{}))
}

func TestArenaDeckNPCFilterThreshold(t *testing.T) {
	assert.True(t, int64(1_000_000_001) > arenaDeckNPCFloor)
	assert.False(t, int64(1_000_000_000) > arenaDeckNPCFloor)
}

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFavoriteUnitIDFromObject(t *testing.T) {
	assert.Equal(t, int64(1001), favoriteUnitID(map[string]any{"id": int64(1001)}))
}

func TestFavoriteUnitIDFromBareNumber(t *testing.T) {
	assert.Equal(t, int64(1001), favoriteUnitID(int64(1001)))
}

func TestFavoriteUnitIDMissingDefaultsZero(t *testing.T) {
	assert.Equal(t, int64(0), favoriteUnitID(nil))
}

// TestGrandArenaPageCountMatchesTenPagesPerGroup is part of scenario S6:
// three accounts bound to groups {1,2,3} each issue grandArenaPages (10)
// page calls, so three accounts yield 3*10 = 30 page calls total.
func TestGrandArenaPageCountMatchesTenPagesPerGroup(t *testing.T) {
	assert.Equal(t, 10, grandArenaPages)
}

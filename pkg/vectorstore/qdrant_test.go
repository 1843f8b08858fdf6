package vectorstore

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointID_Deterministic(t *testing.T) {
	a := pointID("memory/a.md:0:aaaa0000")
	b := pointID("memory/a.md:0:aaaa0000")
	c := pointID("memory/a.md:1:aaaa0000")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	// Valid UUID, usable as a qdrant point id.
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}

func TestPointID_StableAcrossRelocation(t *testing.T) {
	// Relocation keeps the chunk id, so the derived point id must not
	// depend on anything but the chunk id itself.
	id := "memory/2024-01-01.md:2:deadbeef"
	assert.Equal(t, pointID(id), pointID(id))
}

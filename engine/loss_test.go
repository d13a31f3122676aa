package engine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLossInsertOrdering(t *testing.T) {
	var l lossList
	l.insert(5, 9, 0)
	l.insert(1, 3, 0)
	require.Equal(t, lossList{{1, 3, 0}, {5, 9, 0}}, l)

	// bridge the two ranges
	l.insert(4, 4, 0)
	require.Equal(t, lossList{{1, 9, 0}}, l)

	// contiguous extension
	l.insert(10, 12, 0)
	require.Equal(t, lossList{{1, 12, 0}}, l)
}

func TestLossInsertCovered(t *testing.T) {
	l := lossList{{5, 9, 0}}

	l.insert(6, 8, 0)
	require.Equal(t, lossList{{5, 9, 0}}, l)

	// covered by a foreign group's range: the original attribution wins
	l.insert(6, 8, 1)
	require.Equal(t, lossList{{5, 9, 0}}, l)

	l.insert(5, 9, 1)
	require.Equal(t, lossList{{5, 9, 0}}, l)
}

func TestLossInsertForeignClip(t *testing.T) {
	l := lossList{{5, 9, 0}}
	l.insert(3, 7, 1)
	require.Equal(t, lossList{{3, 4, 1}, {5, 9, 0}}, l)

	l = lossList{{5, 9, 0}}
	l.insert(7, 12, 1)
	require.Equal(t, lossList{{5, 9, 0}, {10, 12, 1}}, l)
}

func TestLossInsertAbsorb(t *testing.T) {
	l := lossList{{5, 6, 0}, {8, 9, 1}}
	l.insert(1, 10, 0)
	require.Equal(t, lossList{{1, 7, 0}, {8, 9, 1}}, l)
}

func TestLossInsertInverted(t *testing.T) {
	var l lossList
	l.insert(5, 4, 0)
	require.Empty(t, l)
}

func TestLossFill(t *testing.T) {
	// exact removal
	l := lossList{{4, 4, 2}}
	group, found := l.fill(4)
	require.True(t, found)
	require.Equal(t, uint32(2), group)
	require.Empty(t, l)

	// edge trims
	l = lossList{{4, 8, 0}}
	_, found = l.fill(4)
	require.True(t, found)
	require.Equal(t, lossList{{5, 8, 0}}, l)
	_, found = l.fill(8)
	require.True(t, found)
	require.Equal(t, lossList{{5, 7, 0}}, l)

	// interior split keeps the group tag on both halves
	l = lossList{{4, 8, 3}}
	group, found = l.fill(6)
	require.True(t, found)
	require.Equal(t, uint32(3), group)
	require.Equal(t, lossList{{4, 5, 3}, {7, 8, 3}}, l)
}

func TestLossFillMiss(t *testing.T) {
	l := lossList{{4, 8, 0}, {12, 14, 1}}
	for _, seq := range []uint32{1, 3, 9, 11, 15} {
		_, found := l.fill(seq)
		require.False(t, found, "seq %d", seq)
	}
	require.Len(t, l, 2)
}

func TestLossFillEmpty(t *testing.T) {
	var l lossList
	_, found := l.fill(1)
	require.False(t, found)
}

func TestLostInGroup(t *testing.T) {
	l := lossList{{1, 3, 0}, {5, 5, 1}, {8, 9, 0}}
	require.Equal(t, uint32(5), l.lostInGroup(0))
	require.Equal(t, uint32(1), l.lostInGroup(1))
	require.Equal(t, uint32(0), l.lostInGroup(2))
}

func TestDropGroups(t *testing.T) {
	l := lossList{{1, 3, 0}, {5, 5, 1}, {8, 9, 2}, {12, 12, 5}}
	removed := l.dropGroups(1, 2)
	require.Equal(t, 2, removed)
	require.Equal(t, lossList{{1, 3, 0}, {12, 12, 5}}, l)

	removed = l.dropGroups(3, 4)
	require.Equal(t, 0, removed)
	require.Len(t, l, 2)
}

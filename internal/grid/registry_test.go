package grid_test

import (
	"testing"

	"github.com/l1jgo/pathd/internal/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(n int, f byte) []byte {
	b := make([]byte, n*n)
	for i := range b {
		b[i] = f
	}
	return b
}

func newRegistry() *grid.Registry {
	return grid.NewRegistry(grid.Geometry{CellSize: 0.25, ChunkCells: 200, ChunkSpan: 50})
}

func TestModePassable(t *testing.T) {
	def := grid.Mode{}
	slopes := grid.Mode{IgnoreSlopes: true}
	obstacles := grid.Mode{IgnoreObstacles: true}

	cases := []struct {
		name                   string
		flags                  byte
		def, slopes, obstacles bool
	}{
		{"walkable", grid.FlagWalkable, true, true, true},
		{"obstacle only", grid.FlagObstacle, false, false, true},
		{"water only", grid.FlagWater, false, false, false},
		{"steep clear", 0, false, true, true},
		{"walkable water", grid.FlagWalkable | grid.FlagWater, true, false, false},
		{"walkable obstacle", grid.FlagWalkable | grid.FlagObstacle, true, false, true},
		{"reserved bits ignored", grid.FlagWalkable | 0x02 | 0x80, true, true, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.def, def.Passable(c.flags))
			assert.Equal(t, c.slopes, slopes.Passable(c.flags))
			assert.Equal(t, c.obstacles, obstacles.Passable(c.flags))
		})
	}
}

func TestChunkIDRoundTrip(t *testing.T) {
	for _, c := range []grid.ChunkCoord{{0, 0}, {-1, 3}, {120, -77}} {
		got, err := grid.ParseChunkID(grid.ChunkID(c))
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := grid.ParseChunkID("12")
	assert.Error(t, err)
	_, err = grid.ParseChunkID("a,b")
	assert.Error(t, err)
}

func TestIsWalkableResolvesChunkAndCell(t *testing.T) {
	r := newRegistry()
	flags := filled(200, grid.FlagWalkable)
	flags[3*200+2] = grid.FlagObstacle // local (2, 3)
	_, err := r.Register("-1,0", grid.ChunkCoord{X: -1, Z: 0}, -50, 0, flags, 1)
	require.NoError(t, err)

	assert.True(t, r.IsWalkable(-49.9, 0.1, grid.Mode{}))
	assert.False(t, r.IsWalkable(-50+2*0.25+0.1, 3*0.25+0.1, grid.Mode{}))
	assert.True(t, r.IsWalkable(-50+2*0.25+0.1, 3*0.25+0.1, grid.Mode{IgnoreObstacles: true}))
	assert.True(t, r.IsWalkable(-0.01, 49.99, grid.Mode{}), "floor, not truncation, picks chunk -1")
	assert.False(t, r.IsWalkable(0.01, 0.01, grid.Mode{}), "chunk 0,0 is not registered")
	assert.False(t, r.IsWalkable(-25, 50.01, grid.Mode{}))

	assert.True(t, r.HasChunkAt(-0.5, 10))
	assert.False(t, r.HasChunkAt(0.5, 10))
}

func TestIsWalkableMemo(t *testing.T) {
	r := newRegistry()
	_, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagWalkable), 1)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		r.IsWalkable(float64(i), 1, grid.Mode{})
	}
	lookups, hits := r.MemoStats()
	assert.Equal(t, uint64(10), lookups)
	assert.Equal(t, uint64(9), hits)

	// a different chunk invalidates the slot; so does unregistering
	assert.False(t, r.IsWalkable(60, 1, grid.Mode{}))
	assert.True(t, r.IsWalkable(1, 1, grid.Mode{}))
	r.Unregister("0,0")
	assert.False(t, r.IsWalkable(1, 1, grid.Mode{}), "memo must not serve an unregistered chunk")

	_, err = r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagWater), 1)
	require.NoError(t, err)
	assert.False(t, r.IsWalkable(1, 1, grid.Mode{}))
	assert.False(t, r.IsWalkable(1, 1, grid.Mode{IgnoreObstacles: true}))
}

func TestRegisterReplacesAndBumpsVersion(t *testing.T) {
	r := newRegistry()
	c1, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagWalkable), 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), c1.Version)

	c2, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagObstacle), 5)
	require.NoError(t, err)
	assert.Greater(t, c2.Version, c1.Version)
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.IsWalkable(1, 1, grid.Mode{}))

	c3, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagWalkable), 40)
	require.NoError(t, err)
	assert.Equal(t, uint64(40), c3.Version)
}

func TestRegisterRejectsWrongSize(t *testing.T) {
	r := newRegistry()
	_, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, make([]byte, 10), 1)
	assert.ErrorIs(t, err, grid.ErrFlagsSize)
	assert.Zero(t, r.Len())
}

func TestUpdateUnknownChunkIsNoop(t *testing.T) {
	r := newRegistry()
	_, err := r.Update("4,4", filled(200, grid.FlagWalkable))
	assert.ErrorIs(t, err, grid.ErrUnknownChunk)
	_, err = r.UpdateCells("4,4", []grid.CellPatch{{Index: 0, Flags: 1}})
	assert.ErrorIs(t, err, grid.ErrUnknownChunk)
	assert.False(t, r.Unregister("4,4"))
	assert.Zero(t, r.Len())
	assert.Nil(t, r.Get("4,4"))
	assert.False(t, r.HasChunkAt(4*50+1, 4*50+1))
}

func TestUpdateAndUpdateCells(t *testing.T) {
	r := newRegistry()
	c, err := r.Register("0,0", grid.ChunkCoord{}, 0, 0, filled(200, grid.FlagWalkable), 1)
	require.NoError(t, err)

	_, err = r.Update("0,0", filled(200, grid.FlagWater))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), c.Version)
	assert.False(t, r.IsWalkable(0.1, 0.1, grid.Mode{IgnoreObstacles: true}))

	skipped, err := r.UpdateCells("0,0", []grid.CellPatch{
		{Index: 0, Flags: grid.FlagWalkable},
		{Index: 200*200 + 5, Flags: grid.FlagWalkable},
		{Index: -1, Flags: grid.FlagWalkable},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, uint64(3), c.Version)
	assert.True(t, r.IsWalkable(0.1, 0.1, grid.Mode{}))
	assert.False(t, r.IsWalkable(0.3, 0.1, grid.Mode{}))

	_, err = r.Update("0,0", make([]byte, 3))
	assert.ErrorIs(t, err, grid.ErrFlagsSize)
}

func TestChunksSortedByID(t *testing.T) {
	r := newRegistry()
	for _, c := range []grid.ChunkCoord{{1, 0}, {0, 0}, {-1, 2}} {
		_, err := r.Register(grid.ChunkID(c), c, float64(c.X)*50, float64(c.Z)*50, filled(200, 1), 1)
		require.NoError(t, err)
	}
	ids := []string{}
	for _, c := range r.Chunks() {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"-1,2", "0,0", "1,0"}, ids)
}

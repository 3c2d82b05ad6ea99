package data

import (
	"fmt"
	"os"

	"github.com/l1jgo/pathd/internal/grid"
	"gopkg.in/yaml.v3"
)

// Cell glyphs used in fixture rows.
const (
	GlyphWalkable = '.'
	GlyphObstacle = '#'
	GlyphWater    = '~'
	GlyphSteep    = 's' // clear but excluded from the walkable bit (slope)
)

// ChunkFixture describes one chunk as ASCII rows, loaded from YAML.
// Row i is local Z = i, column j is local X = j.
type ChunkFixture struct {
	ID      string   `yaml:"id"`
	ChunkX  int32    `yaml:"chunk_x"`
	ChunkZ  int32    `yaml:"chunk_z"`
	OriginX *float64 `yaml:"origin_x"` // defaults to chunk_x * chunk_span
	OriginZ *float64 `yaml:"origin_z"`
	Version uint64   `yaml:"version"`
	Fill    string   `yaml:"fill"` // glyph for cells not covered by rows, default "."
	Rows    []string `yaml:"rows"`
}

type fixtureFile struct {
	Chunks []ChunkFixture `yaml:"chunks"`
}

// LoadChunkFixtures reads a fixture YAML file.
func LoadChunkFixtures(path string) ([]ChunkFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", path, err)
	}
	var file fixtureFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return file.Chunks, nil
}

// RegisterFixtures registers every fixture into reg and returns the count.
func RegisterFixtures(reg *grid.Registry, fixtures []ChunkFixture) (int, error) {
	geo := reg.Geometry()
	for i, f := range fixtures {
		fill := byte(GlyphWalkable)
		if f.Fill != "" {
			fill = f.Fill[0]
		}
		flags, err := ParseRows(f.Rows, geo.ChunkCells, fill)
		if err != nil {
			return i, fmt.Errorf("fixture %d (%s): %w", i, f.ID, err)
		}
		coord := grid.ChunkCoord{X: f.ChunkX, Z: f.ChunkZ}
		id := f.ID
		if id == "" {
			id = grid.ChunkID(coord)
		}
		ox := float64(f.ChunkX) * geo.ChunkSpan
		if f.OriginX != nil {
			ox = *f.OriginX
		}
		oz := float64(f.ChunkZ) * geo.ChunkSpan
		if f.OriginZ != nil {
			oz = *f.OriginZ
		}
		if _, err := reg.Register(id, coord, ox, oz, flags, f.Version); err != nil {
			return i, fmt.Errorf("fixture %d (%s): %w", i, id, err)
		}
	}
	return len(fixtures), nil
}

// ParseRows converts ASCII rows into a cells*cells flags buffer.
// Missing rows and short rows are padded with fill.
func ParseRows(rows []string, cells int, fill byte) ([]byte, error) {
	if len(rows) > cells {
		return nil, fmt.Errorf("%d rows exceed chunk size %d", len(rows), cells)
	}
	fillFlags, err := GlyphFlags(fill)
	if err != nil {
		return nil, err
	}
	flags := make([]byte, cells*cells)
	for i := range flags {
		flags[i] = fillFlags
	}
	for z, row := range rows {
		if len(row) > cells {
			return nil, fmt.Errorf("row %d has %d cells, chunk size is %d", z, len(row), cells)
		}
		for x := 0; x < len(row); x++ {
			f, err := GlyphFlags(row[x])
			if err != nil {
				return nil, fmt.Errorf("row %d col %d: %w", z, x, err)
			}
			flags[z*cells+x] = f
		}
	}
	return flags, nil
}

// GlyphFlags maps a fixture glyph to its cell flags.
func GlyphFlags(g byte) (byte, error) {
	switch g {
	case GlyphWalkable:
		return grid.FlagWalkable, nil
	case GlyphObstacle:
		return grid.FlagObstacle, nil
	case GlyphWater:
		return grid.FlagWater, nil
	case GlyphSteep:
		return 0, nil
	}
	return 0, fmt.Errorf("unknown glyph %q", g)
}

package store

import (
	"encoding/binary"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/Blecki/dwarfcorp-sub032/internal/sim/voxel"
)

const chunkVolume = voxel.ChunkSize * voxel.ChunkSize * voxel.ChunkSize

type Chunk struct {
	Key    voxel.ChunkKey
	Blocks []uint16 // len = 16*16*16, see voxel.Coord.LocalIndex
	Liquid []uint8

	dirty bool
	hash  uint64
}

func newChunk(k voxel.ChunkKey, air uint16) *Chunk {
	ch := &Chunk{
		Key:    k,
		Blocks: make([]uint16, chunkVolume),
		Liquid: make([]uint8, chunkVolume),
		dirty:  true,
	}
	if air != 0 {
		for i := range ch.Blocks {
			ch.Blocks[i] = air
		}
	}
	return ch
}

func (c *Chunk) set(i int, b uint16) {
	if c.Blocks[i] == b {
		return
	}
	c.Blocks[i] = b
	c.dirty = true
}

func (c *Chunk) setLiquid(i int, level uint8) {
	if c.Liquid[i] == level {
		return
	}
	c.Liquid[i] = level
	c.dirty = true
}

// Digest hashes block ids and liquid levels. The result is cached until the
// chunk changes.
func (c *Chunk) Digest() uint64 {
	if c.dirty || c.hash == 0 {
		h := xxh3.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			_, _ = h.Write(tmp[:])
		}
		_, _ = h.Write(c.Liquid)
		c.hash = h.Sum64()
		c.dirty = false
	}
	return c.hash
}

type Config struct {
	// Air is the block id treated as empty.
	Air uint16
	// Bounds clamps the store; voxels outside are invalid even when their
	// chunk is loaded. The zero value and inverted boxes mean unbounded.
	Bounds voxel.Bounds
	// Flying lets MovableNeighbors emit unsupported moves as MoveFly.
	Flying bool
}

func (c Config) unbounded() bool { return c.Bounds.IsZero() || c.Bounds.Empty() }

// ChunkStore is an in-memory chunked voxel grid. Only loaded chunks are
// valid. Readers (plan workers) and the writer (simulation tick) may run
// concurrently.
type ChunkStore struct {
	cfg Config

	mu     sync.RWMutex
	chunks map[voxel.ChunkKey]*Chunk
}

func NewChunkStore(cfg Config) *ChunkStore {
	return &ChunkStore{
		cfg:    cfg,
		chunks: map[voxel.ChunkKey]*Chunk{},
	}
}

func (s *ChunkStore) Config() Config { return s.cfg }

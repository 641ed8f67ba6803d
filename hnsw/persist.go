package hnsw

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math/rand"
	"os"
	"sync"
	"unsafe"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/patrikhermansson/smallworld/core"
	"github.com/patrikhermansson/smallworld/vectorstore"
)

// Snapshot format: a fixed little-endian header followed by a payload of the
// vector block and the per-node adjacency table. The header carries a CRC-32
// of the uncompressed payload. All payload fields are 4 bytes wide and the
// header length is a multiple of 4, so an uncompressed snapshot can be
// memory-mapped and sliced in place.
const (
	// snapshotMagic is ASCII "SWG1".
	snapshotMagic = 0x53574731

	// snapshotVersion is the current format version.
	snapshotVersion = 1

	// flagCompressed marks a zstd-compressed payload.
	flagCompressed = 1

	headerSize = 60
)

// fileHeader is the self-describing snapshot header.
type fileHeader struct {
	Magic      uint32
	Version    uint32
	Flags      uint32
	Metric     uint32
	Dimension  uint32
	M          uint32
	M0         uint32
	EntryPoint uint32
	MaxLevel   int32
	Count      uint64
	LevelMult  float64
	Checksum   uint32 // CRC-32 (IEEE) of the uncompressed payload
	Pad        [4]byte
}

// Save writes the index to path as an uncompressed binary snapshot.
func (h *Index) Save(path string) error {
	return h.save(path, false)
}

// SaveCompressed writes the index to path with a zstd-compressed payload.
// Compressed snapshots cannot be loaded with LoadMapped.
func (h *Index) SaveCompressed(path string) error {
	return h.save(path, true)
}

func (h *Index) save(path string, compressed bool) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := fileHeader{
		Magic:      snapshotMagic,
		Version:    snapshotVersion,
		Metric:     uint32(h.store.Metric()),
		Dimension:  uint32(h.store.Dim()),
		M:          uint32(h.opts.M),
		M0:         uint32(h.opts.M0),
		EntryPoint: h.entryPoint,
		MaxLevel:   int32(h.maxLevel),
		Count:      uint64(len(h.nodes)),
		LevelMult:  h.opts.LevelMult,
	}
	if compressed {
		header.Flags |= flagCompressed
	}

	// Reserve the header; it is rewritten with the checksum at the end.
	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	var payload io.Writer
	var zw *zstd.Encoder
	bw := bufio.NewWriter(f)
	if compressed {
		zw, err = zstd.NewWriter(bw)
		if err != nil {
			return err
		}
		payload = io.MultiWriter(zw, crc)
	} else {
		payload = io.MultiWriter(bw, crc)
	}

	if err := h.writePayload(payload); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}

	header.Checksum = crc.Sum32()
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if err := binary.Write(f, binary.LittleEndian, &header); err != nil {
		return err
	}

	log.Info().Msgf("Index saved to %s (%d nodes, compressed=%t)", path, len(h.nodes), compressed)
	return nil
}

func (h *Index) writePayload(w io.Writer) error {
	// Vector block: count*dim raw float32 values.
	raw := h.store.Raw()
	if len(raw) > 0 {
		byteView := unsafe.Slice((*byte)(unsafe.Pointer(&raw[0])), len(raw)*4)
		if _, err := w.Write(byteView); err != nil {
			return err
		}
	}

	// Adjacency table: per node a level count, then per level a
	// count-prefixed list of neighbor ids.
	var scratch [4]byte
	writeU32 := func(v uint32) error {
		binary.LittleEndian.PutUint32(scratch[:], v)
		_, err := w.Write(scratch[:])
		return err
	}
	for _, n := range h.nodes {
		n.mu.RLock()
		links := n.links
		n.mu.RUnlock()

		if err := writeU32(uint32(len(links))); err != nil {
			return err
		}
		for _, level := range links {
			if err := writeU32(uint32(len(level))); err != nil {
				return err
			}
			for _, id := range level {
				if err := writeU32(id); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Load reads a snapshot into memory and reconstructs the index. Build-time
// options not recorded in the snapshot (EFConstruction, EFSearch, NumWorkers,
// Seed) can be supplied via optFns; graph parameters come from the header.
func Load(path string, optFns ...func(o *Options)) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := readHeader(f)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if header.Flags&flagCompressed != 0 {
		zr, err := zstd.NewReader(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrCorruptData, err)
		}
		defer zr.Close()
		payload, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrCorruptData, err)
		}
	} else {
		payload, err = io.ReadAll(bufio.NewReader(f))
		if err != nil {
			return nil, err
		}
	}

	if crc32.ChecksumIEEE(payload) != header.Checksum {
		return nil, fmt.Errorf("%w: payload checksum mismatch", core.ErrCorruptData)
	}

	h, err := buildFromPayload(header, payload, optFns)
	if err != nil {
		return nil, err
	}
	log.Info().Msgf("Index loaded from %s (%d nodes)", path, header.Count)
	return h, nil
}

// LoadMapped memory-maps an uncompressed snapshot and serves the vector
// block and neighbor lists as views into the mapping, trading load latency
// for page-fault cost at query time. The payload is bounds-validated but not
// checksummed, so cold pages are not touched up front. Call Close on the
// returned index to release the mapping.
func LoadMapped(path string, optFns ...func(o *Options)) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := readHeader(f)
	if err != nil {
		return nil, err
	}
	if header.Flags&flagCompressed != 0 {
		return nil, fmt.Errorf("%w: compressed snapshots cannot be memory-mapped", core.ErrUnsupportedFormat)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	mapping, err := mmapFile(f, int(info.Size()))
	if err != nil {
		return nil, err
	}

	h, err := buildFromPayload(header, mapping[headerSize:], optFns)
	if err != nil {
		_ = munmapFile(mapping)
		return nil, err
	}
	h.mapping = mapping
	log.Info().Msgf("Index mapped from %s (%d nodes)", path, header.Count)
	return h, nil
}

func readHeader(r io.Reader) (*fileHeader, error) {
	var header fileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", core.ErrCorruptData)
		}
		return nil, err
	}
	if header.Magic != snapshotMagic {
		return nil, fmt.Errorf("%w: bad magic 0x%08x", core.ErrUnsupportedFormat, header.Magic)
	}
	if header.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", core.ErrUnsupportedFormat, header.Version)
	}
	if header.Dimension == 0 || header.Metric > uint32(core.Angular) {
		return nil, fmt.Errorf("%w: invalid header fields", core.ErrCorruptData)
	}
	return &header, nil
}

// buildFromPayload reconstructs an index over a payload block. Neighbor
// lists and the vector block alias the payload; mutation paths replace
// slices wholesale, so a read-only mapping stays intact.
func buildFromPayload(header *fileHeader, payload []byte, optFns []func(o *Options)) (*Index, error) {
	opts := DefaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.M = int(header.M)
	opts.M0 = int(header.M0)
	opts.LevelMult = header.LevelMult
	if err := validateOptions(&opts); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptData, err)
	}

	dim := int(header.Dimension)
	count := int(header.Count)
	metric := core.Metric(header.Metric)

	vecBytes := count * dim * 4
	if len(payload) < vecBytes {
		return nil, fmt.Errorf("%w: vector block out of bounds", core.ErrCorruptData)
	}

	var block []float32
	if vecBytes > 0 {
		block = unsafe.Slice((*float32)(unsafe.Pointer(&payload[0])), count*dim)
	}
	store, err := vectorstore.Wrap(dim, metric, block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCorruptData, err)
	}

	r := &payloadReader{data: payload, off: vecBytes}
	nodes := make([]*node, count)
	maxLevel := -1
	for id := 0; id < count; id++ {
		levelCount, err := r.u32()
		if err != nil {
			return nil, err
		}
		if levelCount == 0 || levelCount > maxLevelCap+1 {
			return nil, fmt.Errorf("%w: node %d has invalid level count %d", core.ErrCorruptData, id, levelCount)
		}
		n := newNode(uint32(id), int(levelCount)-1)
		for level := range n.links {
			cnt, err := r.u32()
			if err != nil {
				return nil, err
			}
			degreeCap := uint32(opts.M)
			if level == 0 {
				degreeCap = uint32(opts.M0)
			}
			if cnt > degreeCap {
				return nil, fmt.Errorf("%w: node %d exceeds degree cap at level %d", core.ErrCorruptData, id, level)
			}
			view, err := r.u32View(int(cnt))
			if err != nil {
				return nil, err
			}
			for _, nb := range view {
				if int(nb) >= count {
					return nil, fmt.Errorf("%w: neighbor id %d out of range", core.ErrCorruptData, nb)
				}
			}
			n.links[level] = view
		}
		if n.level > maxLevel {
			maxLevel = n.level
		}
		nodes[id] = n
	}
	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", core.ErrCorruptData, len(r.data)-r.off)
	}
	if int32(maxLevel) != header.MaxLevel {
		return nil, fmt.Errorf("%w: max level mismatch", core.ErrCorruptData)
	}
	if count > 0 {
		ep := int(header.EntryPoint)
		if ep >= count || nodes[ep].level != maxLevel {
			return nil, fmt.Errorf("%w: invalid entry point", core.ErrCorruptData)
		}
	}

	h := &Index{
		opts:       opts,
		store:      store,
		nodes:      nodes,
		entryPoint: header.EntryPoint,
		maxLevel:   maxLevel,
		rng:        rand.New(rand.NewSource(opts.Seed)),
	}
	h.visitedPool = sync.Pool{New: func() any { return newVisitedSet(count + 1) }}
	return h, nil
}

// payloadReader walks the adjacency section with bounds checks; any overrun
// reports corruption.
type payloadReader struct {
	data []byte
	off  int
}

func (r *payloadReader) u32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, fmt.Errorf("%w: truncated adjacency table", core.ErrCorruptData)
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

// u32View returns n uint32 values aliasing the payload.
func (r *payloadReader) u32View(n int) ([]uint32, error) {
	if n == 0 {
		return nil, nil
	}
	if r.off+n*4 > len(r.data) {
		return nil, fmt.Errorf("%w: truncated neighbor list", core.ErrCorruptData)
	}
	view := unsafe.Slice((*uint32)(unsafe.Pointer(&r.data[r.off])), n)
	r.off += n * 4
	return view, nil
}

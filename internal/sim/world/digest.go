package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"sort"
)

// Digest hashes the set of blocks independent of insertion order.
func (w *World) Digest() string {
	return DigestBlocks(w.blocks)
}

func DigestBlocks(blocks []Block) string {
	sorted := make([]Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Pos.Less(sorted[j].Pos) })

	h := sha256.New()
	var tmp [8]byte
	digestWriteU64(h, &tmp, uint64(len(sorted)))
	for _, b := range sorted {
		digestWriteI64(h, &tmp, int64(b.Pos.X))
		digestWriteI64(h, &tmp, int64(b.Pos.Y))
		digestWriteI64(h, &tmp, int64(b.Pos.Z))
		h.Write([]byte(b.Material))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func digestWriteU64(h io.Writer, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h io.Writer, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

package ws

import (
	"blockcraft.dev/internal/protocol"
	"blockcraft.dev/internal/scene"
	"blockcraft.dev/internal/sim/catalogs"
	"blockcraft.dev/internal/sim/material"
	"blockcraft.dev/internal/sim/world"
)

// Structures lists the catalog in key order.
func Structures(cat *catalogs.Catalog) []protocol.StructureInfo {
	out := make([]protocol.StructureInfo, 0, cat.Len())
	for _, key := range cat.Keys() {
		tpl, _ := cat.Get(key)
		out = append(out, protocol.StructureInfo{
			Key:    key,
			Name:   tpl.Name,
			Blocks: len(tpl.Blocks),
			Digest: cat.TemplateDigest(key),
		})
	}
	return out
}

func Materials(res *material.Resolver) []protocol.MaterialInfo {
	apps := res.Appearances()
	out := make([]protocol.MaterialInfo, 0, len(apps))
	for _, a := range apps {
		out = append(out, protocol.MaterialInfo{Type: string(a.Material), Color: a.Color, Faces: a.Faces})
	}
	return out
}

func Ground(g world.GroundConfig) protocol.GroundInfo {
	return protocol.GroundInfo{Size: g.Size, Material: string(g.Material)}
}

func BlockRefs(blocks []world.Block) []protocol.BlockRef {
	out := make([]protocol.BlockRef, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, protocol.BlockRef{ID: string(b.ID), Pos: b.Pos.ToArray(), Material: string(b.Material)})
	}
	return out
}

func SnapshotMsg(s world.Snapshot) protocol.SnapshotMsg {
	return protocol.SnapshotMsg{
		Type:            protocol.TypeSnapshot,
		ProtocolVersion: protocol.Version,
		Version:         s.Version,
		Blocks:          BlockRefs(s.Blocks),
	}
}

func deltaMsg(d scene.Delta) protocol.DeltaMsg {
	removed := make([]string, 0, len(d.Removed))
	for _, id := range d.Removed {
		removed = append(removed, string(id))
	}
	return protocol.DeltaMsg{
		Type:            protocol.TypeDelta,
		ProtocolVersion: protocol.Version,
		Version:         d.Version,
		Added:           BlockRefs(d.Added),
		Removed:         removed,
	}
}

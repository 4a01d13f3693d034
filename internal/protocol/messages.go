package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
}

type HelloCapabilities struct {
	// Delta asks for DELTA messages instead of a SNAPSHOT per change.
	Delta    bool `json:"delta,omitempty"`
	MaxQueue int  `json:"max_queue,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type             string          `json:"type"`
	ProtocolVersion  string          `json:"protocol_version"`
	SessionID        string          `json:"session_id"`
	Ground           GroundInfo      `json:"ground"`
	Structures       []StructureInfo `json:"structures"`
	Materials        []MaterialInfo  `json:"materials"`
	SelectedMaterial string          `json:"selected_material"`
}

type GroundInfo struct {
	Size     int    `json:"size"`
	Material string `json:"material"`
}

type StructureInfo struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Blocks int    `json:"blocks"`
	Digest string `json:"digest"`
}

type MaterialInfo struct {
	Type  string `json:"type"`
	Color string `json:"color"`
	// Faces holds one texture for uniform materials, else six ordered
	// right, left, top, bottom, front, back.
	Faces []string `json:"faces,omitempty"`
}

type BlockRef struct {
	ID       string `json:"id"`
	Pos      [3]int `json:"pos"`
	Material string `json:"material"`
}

// SNAPSHOT (server -> client): the full block set.
type SnapshotMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Version         uint64     `json:"version"`
	Blocks          []BlockRef `json:"blocks"`
}

// DELTA (server -> client): changes since the previous SNAPSHOT or DELTA.
type DeltaMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Version         uint64     `json:"version"`
	Added           []BlockRef `json:"added"`
	Removed         []string   `json:"removed"`
}

// ACT (client -> server). Which fields matter depends on Action.
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	Action          string `json:"action"`

	Hit      *HitRef `json:"hit,omitempty"`
	Material string  `json:"material,omitempty"`

	Structure string  `json:"structure,omitempty"`
	Origin    *[3]int `json:"origin,omitempty"`
	Animated  *bool   `json:"animated,omitempty"`
	DelayMS   *int    `json:"delay_ms,omitempty"`
	Rotation  int     `json:"rotation,omitempty"`

	BuildID string `json:"build_id,omitempty"`
}

type HitRef struct {
	BlockID string      `json:"block_id"`
	Normal  *[3]float64 `json:"normal,omitempty"`
}

// RESULT (server -> client): outcome of one ACT.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Ref             string `json:"ref"`
	OK              bool   `json:"ok"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	BlockID         string `json:"block_id,omitempty"`
	BuildID         string `json:"build_id,omitempty"`
}

// BUILD_DONE (server -> client): an animated build started by this session
// finished or was cancelled.
type BuildDoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	BuildID         string `json:"build_id"`
	Structure       string `json:"structure"`
	Placed          int    `json:"placed"`
	Skipped         int    `json:"skipped"`
	Cancelled       bool   `json:"cancelled"`
	Complete        bool   `json:"complete"`
	Min             [3]int `json:"min"`
	Max             [3]int `json:"max"`
}

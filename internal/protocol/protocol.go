package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeSnapshot  = "SNAPSHOT"
	TypeDelta     = "DELTA"
	TypeAct       = "ACT"
	TypeResult    = "RESULT"
	TypeBuildDone = "BUILD_DONE"
)

// Act actions.
const (
	ActionPlace       = "PLACE"
	ActionRemove      = "REMOVE"
	ActionSelect      = "SELECT"
	ActionClear       = "CLEAR"
	ActionBuild       = "BUILD"
	ActionCancelBuild = "CANCEL_BUILD"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

package protocol

import (
	"strconv"
	"strings"
)

// Input frame kinds accepted on the pointer input socket.
const (
	InputButton = "button"
	InputMove   = "move"
	InputClick  = "click"
	InputScroll = "scroll"
)

// Field is one key:value line of an input frame.
type Field struct {
	Key   string
	Value string
}

// IntField formats an integer field.
func IntField(key string, v int) Field {
	return Field{Key: key, Value: strconv.Itoa(v)}
}

// InputFrame encodes a fire-and-forget input event:
//
//	type:<kind>\n<key>:<value>\n...\n\n
func InputFrame(kind string, fields ...Field) string {
	var b strings.Builder
	b.WriteString("type:")
	b.WriteString(kind)
	b.WriteByte('\n')
	for _, f := range fields {
		b.WriteString(f.Key)
		b.WriteByte(':')
		b.WriteString(f.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return b.String()
}

// InputSocketPayload is returned by EndpointInputSocket.
type InputSocketPayload struct {
	SocketPath string `json:"socketPath"`
}

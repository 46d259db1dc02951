package mcphost

import (
	"bytes"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// jsonAPI handles all protocol serialization. The compat configuration keeps
// raw-message validation and map-key ordering identical to encoding/json.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeMessage serializes msg into a single frame: UTF-8 JSON followed by a
// newline. JSON string escaping guarantees the payload itself never contains
// a raw newline byte, so the result is always exactly one line.
func EncodeMessage(msg JSONRPCMessage) ([]byte, error) {
	data, err := jsonAPI.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeMessage parses a single frame into a JSONRPCMessage, ignoring any
// trailing newline. A frame that is not valid JSON, or that does not carry
// the "2.0" envelope version, fails with an error matching
// ErrMalformedMessage.
func DecodeMessage(data []byte) (JSONRPCMessage, error) {
	var msg JSONRPCMessage
	if err := jsonAPI.Unmarshal(bytes.TrimSpace(data), &msg); err != nil {
		return JSONRPCMessage{}, fmt.Errorf("%w: %s", ErrMalformedMessage, err)
	}
	if msg.JSONRPC != JSONRPCVersion {
		return JSONRPCMessage{}, fmt.Errorf("%w: jsonrpc version %q", ErrMalformedMessage, msg.JSONRPC)
	}
	if msg.Method == "" && !msg.isResponse() {
		return JSONRPCMessage{}, fmt.Errorf("%w: neither request, response, nor notification", ErrMalformedMessage)
	}
	return msg, nil
}

package mcphost_test

import (
	"encoding/json"
	"strings"
	"testing"

	mcphost "github.com/MegaGrindStone/go-mcp-host"
)

func TestRequestID_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    mcphost.RequestID
		wantErr bool
	}{
		{
			name:    "number input",
			input:   `42`,
			want:    mcphost.RequestID(42),
			wantErr: false,
		},
		{
			name:    "numeric string input",
			input:   `"42"`,
			want:    mcphost.RequestID(42),
			wantErr: false,
		},
		{
			name:    "large number",
			input:   `4294967296`,
			want:    mcphost.RequestID(4294967296),
			wantErr: false,
		},
		{
			name:    "non-numeric string",
			input:   `"abc"`,
			want:    mcphost.RequestID(0),
			wantErr: true,
		},
		{
			name:    "object input",
			input:   `{"key": "value"}`,
			want:    mcphost.RequestID(0),
			wantErr: true,
		},
		{
			name:    "null input",
			input:   `null`,
			want:    mcphost.RequestID(0),
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			input:   `invalid`,
			want:    mcphost.RequestID(0),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got mcphost.RequestID
			err := json.Unmarshal([]byte(tt.input), &got)

			if (err != nil) != tt.wantErr {
				t.Errorf("RequestID.UnmarshalJSON() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr && got != tt.want {
				t.Errorf("RequestID.UnmarshalJSON() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestID_MarshalJSON(t *testing.T) {
	tests := []struct {
		name  string
		input mcphost.RequestID
		want  string
	}{
		{
			name:  "positive id",
			input: mcphost.RequestID(7),
			want:  `7`,
		},
		{
			name:  "zero id",
			input: mcphost.RequestID(0),
			want:  `0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.input)
			if err != nil {
				t.Fatalf("RequestID.MarshalJSON() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("RequestID.MarshalJSON() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestJSONRPCMessage_IDPresence(t *testing.T) {
	// A request carries its id on the wire, a notification must not carry
	// one at all.
	request := mcphost.JSONRPCMessage{
		JSONRPC: mcphost.JSONRPCVersion,
		ID:      mcphost.RequestID(3),
		Method:  "tools/list",
	}
	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	if !strings.Contains(string(data), `"id":3`) {
		t.Errorf("request should carry a numeric id, got %s", data)
	}

	notification := mcphost.JSONRPCMessage{
		JSONRPC: mcphost.JSONRPCVersion,
		Method:  "notifications/initialized",
	}
	data, err = json.Marshal(notification)
	if err != nil {
		t.Fatalf("failed to marshal notification: %v", err)
	}
	if strings.Contains(string(data), `"id"`) {
		t.Errorf("notification should not carry an id, got %s", data)
	}
}

func TestJSONRPCError_Error(t *testing.T) {
	err := mcphost.JSONRPCError{
		Code:    -32601,
		Message: "method not found",
	}

	want := "request error, code: -32601, message: method not found, data map[]"
	if got := err.Error(); got != want {
		t.Errorf("JSONRPCError.Error() = %q, want %q", got, want)
	}
}

package rpc

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// WithJSONCodec configures a client or handler for this package's messages.
func WithJSONCodec() connect.Option {
	return connect.WithCodec(jsonCodec{})
}

// jsonCodec lets Connect carry plain Go structs as application/json
// without generated protobuf types.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

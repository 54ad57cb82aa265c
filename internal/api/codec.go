package api

import (
	"encoding/json"
	"fmt"
)

// CodecName is the name of the JSON codec, which determines the
// application/json content type of the connect protocol.
const CodecName = "json"

// JSONCodec is a [connect.Codec] which encodes plain Go structs with
// encoding/json.
type JSONCodec struct{}

// Name implements connect.Codec.
func (JSONCodec) Name() string {
	return CodecName
}

// Marshal implements connect.Codec.
func (JSONCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}

	return b, nil
}

// Unmarshal implements connect.Codec. An empty body decodes to the zero value.
func (JSONCodec) Unmarshal(b []byte, msg any) error {
	if len(b) == 0 {
		return nil
	}

	if err := json.Unmarshal(b, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}

	return nil
}

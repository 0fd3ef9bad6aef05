package grpcrpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName is negotiated over the wire as the content-type subtype
// (application/grpc+raftkit-json).
// raftkit has no protoc toolchain available to generate protobuf
// bindings for its RPC messages, so it rides gRPC's transport (HTTP/2
// framing, multiplexing, deadlines, TLS) while swapping out the wire
// format for plain JSON via this codec.
const codecName = "raftkit-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("grpcrpc: failed to marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcrpc: failed to unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

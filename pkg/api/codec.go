package api

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// codecName mirrors pkg/transport/grpcrpc's approach: there is no
// protoc toolchain available to generate bindings for the admin
// request/response types, so the admin service rides gRPC's transport
// with a JSON wire format instead of protobuf.
const codecName = "raftkit-admin-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("api: failed to marshal %T: %w", v, err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("api: failed to unmarshal into %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

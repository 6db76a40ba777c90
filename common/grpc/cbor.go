package grpc

import (
	"google.golang.org/grpc/encoding"

	"github.com/delegation-marketplace/stx-delegator/common/cbor"
)

var _ encoding.Codec = (*CBORCodec)(nil)

// CBORCodec implements gRPC's encoding.Codec interface.
type CBORCodec struct{}

// Marshal serializes v as canonical CBOR.
func (c *CBORCodec) Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v), nil
}

// Unmarshal deserializes CBOR data into v. A nil v discards the data.
func (c *CBORCodec) Unmarshal(data []byte, v interface{}) error {
	if v == nil {
		return nil
	}
	return cbor.Unmarshal(data, v)
}

// Name returns the codec name.
func (c *CBORCodec) Name() string {
	return "cbor"
}

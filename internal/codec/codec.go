package codec

import "encoding/json"

// Codec encodes event and snapshot payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec produces compact JSON so payloads round-trip byte for byte.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)   { return json.Marshal(v) }
func (JSONCodec) Unmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

// Decode unmarshals data into a fresh T.
func Decode[T any](c Codec, data []byte) (out T, err error) {
	err = c.Unmarshal(data, &out)
	return out, err
}

var _ Codec = JSONCodec{}

package cache

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns results into bytes and back. Decoding into the wrapped
// function's result type must reproduce a value equal to the one encoded.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONCodec is the default codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// MsgpackCodec encodes with MessagePack. It is more compact than JSON and
// keeps integer and binary types intact.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

// CodecFuncs adapts a pair of functions to Codec.
type CodecFuncs struct {
	Encode func(v any) ([]byte, error)
	Decode func(data []byte, v any) error
}

func (c CodecFuncs) Marshal(v any) ([]byte, error) { return c.Encode(v) }

func (c CodecFuncs) Unmarshal(data []byte, v any) error { return c.Decode(data, v) }

// CodecByName returns the builtin codec registered under name: "json" or
// "msgpack". An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	}
	return nil, newConfigurationError("Codec", "unknown codec "+name)
}

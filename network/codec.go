package network

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes message payloads carried inside packets.
type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// MsgPackCodec is the compact binary encoding used for snapshots.
type MsgPackCodec struct{}

func (MsgPackCodec) Name() string { return "msgpack" }

func (MsgPackCodec) Marshal(v interface{}) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgPackCodec) Unmarshal(data []byte, v interface{}) error { return msgpack.Unmarshal(data, v) }

// CodecByName resolves the server.state_codec setting.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgPackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

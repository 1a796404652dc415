package eventbus

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// ErrUnknownCodec is returned by ByName for names other than "json" and "msgpack".
var ErrUnknownCodec = errors.New("unknown codec")

// Codec serialises frames and notice records. Map keys are always written in
// sorted order so encoded records are byte-stable.
type Codec interface {
	Name() string
	// Binary reports whether encoded values must travel in binary websocket frames.
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// ByName resolves a configured codec name. The empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// ForMessage picks the codec a websocket message was sent in: binary
// messages carry msgpack, text messages carry JSON.
func ForMessage(binary bool) Codec {
	if binary {
		return MsgPack
	}
	return JSON
}

// Transcode re-encodes a record written by from so that it reads as to.
// JSON integers stay integers.
func Transcode(from, to Codec, data []byte) ([]byte, error) {
	if from == to {
		return data, nil
	}

	var v any
	if from == JSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		v = fromJSONNumbers(v)
	} else if err := from.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return to.Marshal(v)
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumbers(e)
		}
	}
	return v
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

// encoding/json already sorts map keys.
func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

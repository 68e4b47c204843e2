package models

import (
	"bytes"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"

	"github.com/Etesie/fauna-typed/internal/codec"
)

// JSONCodec encodes tagged trees as JSON. Decoding keeps numbers as
// json.Number so integers survive unchanged.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONCodec) NewEncoder(w io.Writer) codec.Encoder {
	return json.NewEncoder(w)
}

func (JSONCodec) Unmarshal(data []byte, dst any) error {
	return JSONCodec{}.NewDecoder(bytes.NewReader(data)).Decode(dst)
}

func (JSONCodec) NewDecoder(r io.Reader) codec.Decoder {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec
}

func (JSONCodec) Ext() string { return ".json" }

// CBORCodec encodes tagged trees as CBOR.
type CBORCodec struct{}

func (CBORCodec) Marshal(v any) ([]byte, error) {
	return cborEncMode().Marshal(v)
}

func (CBORCodec) NewEncoder(w io.Writer) codec.Encoder {
	return cborEncMode().NewEncoder(w)
}

func (CBORCodec) Unmarshal(data []byte, dst any) error {
	return cborDecMode().Unmarshal(data, dst)
}

func (CBORCodec) NewDecoder(r io.Reader) codec.Decoder {
	return cborDecMode().NewDecoder(r)
}

func (CBORCodec) Ext() string { return ".cbor" }

func cborEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{
		Sort: cbor.SortCanonical,
	}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func cborDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSigned,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// EncodeDocuments serializes docs in the tagged format.
func EncodeDocuments(m codec.Marshaler, docs []Document) ([]byte, error) {
	return m.Marshal(TagDocuments(docs))
}

// DecodeDocuments is the inverse of EncodeDocuments.
func DecodeDocuments(u codec.Unmarshaler, data []byte) ([]Document, error) {
	var raw any
	if err := u.Unmarshal(data, &raw); err != nil {
		return nil, malformed("%v", err)
	}
	return UntagDocuments(raw)
}

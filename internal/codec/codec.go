// Package codec declares the byte-level encoding contracts shared by the
// persistence adapters and the wire layer.
package codec

import "io"

type Encoder interface {
	Encode(v any) error
}

type Decoder interface {
	Decode(v any) error
}

type Marshaler interface {
	Marshal(v any) ([]byte, error)
	NewEncoder(w io.Writer) Encoder
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
	NewDecoder(r io.Reader) Decoder
}

// Codec is a symmetric Marshaler/Unmarshaler pair. Ext is the file
// extension used when the encoded form is written to disk.
type Codec interface {
	Marshaler
	Unmarshaler
	Ext() string
}

// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	"github.com/pakforge/pakforge/lib/schema"
)

func charset(name string) encoding.Encoding {
	switch name {
	case schema.EncodingLatin1:
		return charmap.ISO8859_1
	case schema.EncodingShiftJIS:
		return japanese.ShiftJIS
	}
	return nil
}

// decodeText converts field bytes to text. ok is false when the text
// would not encode back to exactly the same bytes.
func decodeText(encodingName string, data []byte) (string, bool) {
	var text string
	switch encodingName {
	case "", schema.EncodingUTF8:
		if !utf8.Valid(data) {
			return "", false
		}
		text = string(data)
	case schema.EncodingASCII:
		for _, b := range data {
			if b >= utf8.RuneSelf {
				return "", false
			}
		}
		text = string(data)
	default:
		codec := charset(encodingName)
		if codec == nil {
			return "", false
		}
		decoded, err := codec.NewDecoder().Bytes(data)
		if err != nil {
			return "", false
		}
		text = string(decoded)
	}
	encoded, err := encodeText(encodingName, text)
	if err != nil || !bytes.Equal(encoded, data) {
		return "", false
	}
	return text, true
}

func encodeText(encodingName, text string) ([]byte, error) {
	switch encodingName {
	case "", schema.EncodingUTF8:
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: invalid UTF-8", ErrUnencodable)
		}
		return []byte(text), nil
	case schema.EncodingASCII:
		for i := 0; i < len(text); i++ {
			if text[i] >= utf8.RuneSelf {
				return nil, fmt.Errorf("%w: non-ASCII text %q", ErrUnencodable, text)
			}
		}
		return []byte(text), nil
	}
	codec := charset(encodingName)
	if codec == nil {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrUnencodable, encodingName)
	}
	encoded, err := codec.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s: %w", ErrUnencodable, text, encodingName, err)
	}
	return encoded, nil
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// decodeChar splits a fixed-width text field into text and the bytes
// after its terminator. Bytes that do not survive a text round trip
// are kept whole in Raw.
func decodeChar(encodingName string, data []byte) *Node {
	end := bytes.IndexByte(data, 0)
	if end < 0 {
		end = len(data)
	}
	text, ok := decodeText(encodingName, data[:end])
	if !ok {
		return &Node{Kind: KindScalar, Type: schema.Char, Raw: bytes.Clone(data)}
	}
	node := &Node{Kind: KindScalar, Type: schema.Char, Text: text}
	if rest := data[end:]; !allZero(rest) {
		node.Tail = bytes.Clone(rest)
	}
	return node
}

// encodeChar returns exactly size bytes for a char node.
func encodeChar(encodingName string, node *Node, size int) ([]byte, error) {
	var out []byte
	if len(node.Raw) > 0 {
		out = bytes.Clone(node.Raw)
	} else {
		encoded, err := encodeText(encodingName, node.Text)
		if err != nil {
			return nil, err
		}
		if bytes.IndexByte(encoded, 0) >= 0 {
			return nil, fmt.Errorf("%w: text contains NUL", ErrUnencodable)
		}
		out = append(encoded, node.Tail...)
	}
	if len(out) > size {
		return nil, fmt.Errorf("%w: %d bytes in a %d-byte field", ErrFieldTooLong, len(out), size)
	}
	return append(out, make([]byte, size-len(out))...), nil
}

func decodeCString(encodingName string, data []byte) *Node {
	text, ok := decodeText(encodingName, data)
	if !ok {
		return &Node{Kind: KindScalar, Type: schema.CString, Raw: bytes.Clone(data)}
	}
	return &Node{Kind: KindScalar, Type: schema.CString, Text: text}
}

// encodeCString returns the field bytes including the terminator.
func encodeCString(encodingName string, node *Node) ([]byte, error) {
	var out []byte
	if len(node.Raw) > 0 {
		out = bytes.Clone(node.Raw)
	} else {
		encoded, err := encodeText(encodingName, node.Text)
		if err != nil {
			return nil, err
		}
		out = encoded
	}
	if bytes.IndexByte(out, 0) >= 0 {
		return nil, fmt.Errorf("%w: text contains NUL", ErrUnencodable)
	}
	return append(out, 0), nil
}

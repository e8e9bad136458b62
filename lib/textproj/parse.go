// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package textproj

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/schema"
)

// ErrMalformedText is wrapped by every error FromText returns for a
// document it cannot map back to a record tree.
var ErrMalformedText = errors.New("malformed text projection")

// ParseError locates a problem in a text projection. Line is 1-based
// and zero when the document could not be parsed as YAML at all.
type ParseError struct {
	Line  int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Line > 0 && e.Field != "":
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	case e.Field != "":
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func malformed(node *yaml.Node, field, format string, args ...any) error {
	line := 0
	if node != nil {
		line = node.Line
	}
	return &ParseError{
		Line:  line,
		Field: field,
		Err:   fmt.Errorf("%w: %s", ErrMalformedText, fmt.Sprintf(format, args...)),
	}
}

// FromText parses a document produced by ToText, possibly edited, back
// into a record tree.
func FromText(text []byte) (*record.Node, error) {
	var document yaml.Node
	if err := yaml.Unmarshal(text, &document); err != nil {
		return nil, &ParseError{Err: fmt.Errorf("%w: %w", ErrMalformedText, err)}
	}
	if document.Kind != yaml.DocumentNode || len(document.Content) != 1 {
		return nil, malformed(&document, "", "empty document")
	}
	top := document.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, malformed(top, "", "document is not a mapping")
	}

	var (
		typeName       string
		version        int
		body, spanList *yaml.Node
		haveType       bool
		haveVersion    bool
	)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i], top.Content[i+1]
		switch key.Value {
		case "type":
			if value.Kind != yaml.ScalarNode || value.Value == "" {
				return nil, malformed(value, "type", "expected a type name")
			}
			typeName, haveType = value.Value, true
		case "version":
			parsed, err := strconv.Atoi(value.Value)
			if value.Kind != yaml.ScalarNode || err != nil || parsed < 0 {
				return nil, malformed(value, "version", "expected a non-negative integer, got %q", value.Value)
			}
			version, haveVersion = parsed, true
		case "record":
			body = value
		case "spans":
			spanList = value
		default:
			return nil, malformed(key, key.Value, "unknown key")
		}
	}
	switch {
	case !haveType:
		return nil, malformed(top, "type", "missing")
	case !haveVersion:
		return nil, malformed(top, "version", "missing")
	case body == nil:
		return nil, malformed(top, "record", "missing")
	}

	p := &parser{version: version}
	root, err := p.value(body, typeName)
	if err != nil {
		return nil, err
	}
	switch root.Kind {
	case record.KindComposite:
		if root.Type != typeName || root.Version != version {
			return nil, malformed(body, typeName, "record is tagged %s@%d, document declares %s@%d",
				root.Type, root.Version, typeName, version)
		}
	case record.KindOpaque:
		root.Type = typeName
		root.Version = version
	default:
		return nil, malformed(body, typeName, "record must be a struct or opaque data")
	}

	if spanList != nil {
		spans, err := parseSpans(spanList)
		if err != nil {
			return nil, err
		}
		root.Spans = spans
	}
	return root, nil
}

type parser struct {
	version int
}

func (p *parser) value(node *yaml.Node, path string) (*record.Node, error) {
	if node.Kind == yaml.AliasNode {
		return nil, malformed(node, path, "aliases are not supported")
	}
	tag := node.Tag
	switch {
	case tag == opaqueTag:
		data, err := hexScalar(node, path)
		if err != nil {
			return nil, err
		}
		return record.NewOpaque(schema.Bytes, data), nil

	case strings.HasPrefix(tag, recordTagPrefix):
		return p.composite(node, strings.TrimPrefix(tag, recordTagPrefix), path)

	case strings.HasPrefix(tag, listTagPrefix):
		return p.list(node, strings.TrimPrefix(tag, listTagPrefix), path)

	case strings.HasPrefix(tag, "!") && !strings.HasPrefix(tag, "!!"):
		return scalar(node, strings.TrimPrefix(tag, "!"), path)
	}
	return nil, malformed(node, path, "value has no type tag")
}

func (p *parser) composite(node *yaml.Node, name, path string) (*record.Node, error) {
	version := p.version
	if at := strings.LastIndexByte(name, '@'); at >= 0 {
		parsed, err := strconv.Atoi(name[at+1:])
		if err != nil || parsed < 1 {
			return nil, malformed(node, path, "bad struct version in tag %q", node.Tag)
		}
		name, version = name[:at], parsed
	}
	if name == "" {
		return nil, malformed(node, path, "struct tag has no type name")
	}
	if node.Kind != yaml.MappingNode {
		return nil, malformed(node, path, "%s must be a mapping", node.Tag)
	}
	out := record.NewComposite(name, version)
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		fieldPath := path + "." + key.Value
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return nil, malformed(key, fieldPath, "field name must be a plain string")
		}
		if seen[key.Value] {
			return nil, malformed(key, fieldPath, "duplicate field")
		}
		seen[key.Value] = true
		member, err := p.value(value, fieldPath)
		if err != nil {
			return nil, err
		}
		out.Fields = append(out.Fields, record.Member{Name: key.Value, Value: member})
	}
	return out, nil
}

func (p *parser) list(node *yaml.Node, element, path string) (*record.Node, error) {
	if element == "" {
		return nil, malformed(node, path, "list tag has no element type")
	}
	if node.Kind != yaml.SequenceNode {
		return nil, malformed(node, path, "%s must be a sequence", node.Tag)
	}
	out := record.NewList(element)
	for i, item := range node.Content {
		value, err := p.value(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, value)
	}
	return out, nil
}

func scalar(node *yaml.Node, typeName, path string) (*record.Node, error) {
	if typeName == schema.Char || typeName == schema.CString {
		return text(node, typeName, path)
	}
	if node.Kind != yaml.ScalarNode {
		return nil, malformed(node, path, "!%s must be a scalar", typeName)
	}
	value := node.Value
	switch typeName {
	case schema.Bool:
		switch value {
		case "true":
			return &record.Node{Kind: record.KindScalar, Type: typeName, Bits: 1}, nil
		case "false":
			return &record.Node{Kind: record.KindScalar, Type: typeName, Bits: 0}, nil
		}
		bits, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return nil, malformed(node, path, "expected true, false or a byte, got %q", value)
		}
		return &record.Node{Kind: record.KindScalar, Type: typeName, Bits: bits}, nil

	case schema.F32, schema.F64:
		bitSize := 64
		if typeName == schema.F32 {
			bitSize = 32
		}
		bits, err := floatBits(value, bitSize)
		if err != nil {
			return nil, malformed(node, path, "%v", err)
		}
		return &record.Node{Kind: record.KindScalar, Type: typeName, Bits: bits}, nil
	}

	size, ok := schema.ScalarSize(typeName)
	if !ok || !schema.IsInteger(typeName) {
		return nil, malformed(node, path, "unknown type tag %q", node.Tag)
	}
	if schema.IsSigned(typeName) {
		parsed, err := strconv.ParseInt(value, 10, size*8)
		if err != nil {
			return nil, malformed(node, path, "expected a %s, got %q", typeName, value)
		}
		return record.NewInt(typeName, parsed), nil
	}
	parsed, err := strconv.ParseUint(value, 10, size*8)
	if err != nil {
		return nil, malformed(node, path, "expected a %s, got %q", typeName, value)
	}
	return record.NewUint(typeName, parsed), nil
}

// floatBits parses a decimal float or a 0x bit pattern.
func floatBits(value string, bitSize int) (uint64, error) {
	if hexBits, ok := strings.CutPrefix(value, "0x"); ok {
		bits, err := strconv.ParseUint(hexBits, 16, bitSize)
		if err != nil {
			return 0, fmt.Errorf("bad float bit pattern %q", value)
		}
		return bits, nil
	}
	parsed, err := strconv.ParseFloat(value, bitSize)
	if err != nil {
		return 0, fmt.Errorf("expected a float, got %q", value)
	}
	if bitSize == 32 {
		return uint64(math.Float32bits(float32(parsed))), nil
	}
	return math.Float64bits(parsed), nil
}

func text(node *yaml.Node, typeName, path string) (*record.Node, error) {
	out := &record.Node{Kind: record.KindScalar, Type: typeName}
	switch node.Kind {
	case yaml.ScalarNode:
		out.Text = node.Value
		return out, nil
	case yaml.MappingNode:
	default:
		return nil, malformed(node, path, "!%s must be a string or a mapping", typeName)
	}

	var haveText, haveRaw bool
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "text":
			if value.Kind != yaml.ScalarNode {
				return nil, malformed(value, path, "text must be a string")
			}
			out.Text, haveText = value.Value, true
		case "tail":
			data, err := hexScalar(value, path)
			if err != nil {
				return nil, err
			}
			out.Tail = data
		case "raw":
			data, err := hexScalar(value, path)
			if err != nil {
				return nil, err
			}
			out.Raw, haveRaw = data, true
		default:
			return nil, malformed(key, path, "unknown text key %q", key.Value)
		}
	}
	switch {
	case haveRaw && (haveText || out.Tail != nil):
		return nil, malformed(node, path, "raw excludes text and tail")
	case !haveRaw && !haveText:
		return nil, malformed(node, path, "missing text")
	}
	if len(out.Tail) == 0 {
		out.Tail = nil
	}
	return out, nil
}

func hexScalar(node *yaml.Node, path string) ([]byte, error) {
	if node.Kind != yaml.ScalarNode {
		return nil, malformed(node, path, "expected a hex string")
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(node.Value), ""))
	if err != nil {
		return nil, malformed(node, path, "bad hex: %v", err)
	}
	return data, nil
}

func parseSpans(node *yaml.Node) ([]record.Span, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, malformed(node, "spans", "expected a sequence")
	}
	spans := make([]record.Span, 0, len(node.Content))
	for i, entry := range node.Content {
		path := fmt.Sprintf("spans[%d]", i)
		if entry.Kind != yaml.MappingNode {
			return nil, malformed(entry, path, "expected a mapping")
		}
		var (
			span       record.Span
			haveOffset bool
			haveData   bool
		)
		for j := 0; j+1 < len(entry.Content); j += 2 {
			key, value := entry.Content[j], entry.Content[j+1]
			switch key.Value {
			case "offset":
				offset, err := strconv.Atoi(value.Value)
				if value.Kind != yaml.ScalarNode || err != nil || offset < 0 {
					return nil, malformed(value, path, "offset must be a non-negative integer")
				}
				span.Offset, haveOffset = offset, true
			case "data":
				data, err := hexScalar(value, path)
				if err != nil {
					return nil, err
				}
				span.Data, haveData = data, true
			default:
				return nil, malformed(key, path, "unknown key %q", key.Value)
			}
		}
		if !haveOffset || !haveData {
			return nil, malformed(entry, path, "span needs offset and data")
		}
		spans = append(spans, span)
	}
	return spans, nil
}

// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package textproj

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/schema"
)

// Tag prefixes and tags.
const (
	recordTagPrefix = "!rec/"
	listTagPrefix   = "!list/"
	opaqueTag       = "!opaque"
)

// ToText renders node as a YAML document.
func ToText(node *record.Node) ([]byte, error) {
	if node == nil {
		return nil, fmt.Errorf("rendering nil node")
	}
	document := mapping()
	appendPair(document, "type", plain(node.Type))
	appendPair(document, "version", plain(strconv.Itoa(node.Version)))

	value, err := render(node, node.Version, node.Type)
	if err != nil {
		return nil, err
	}
	appendPair(document, "record", value)

	if len(node.Spans) > 0 {
		spans := &yaml.Node{Kind: yaml.SequenceNode}
		for _, span := range node.Spans {
			entry := mapping()
			appendPair(entry, "offset", plain(strconv.Itoa(span.Offset)))
			appendPair(entry, "data", opaque(span.Data))
			spans.Content = append(spans.Content, entry)
		}
		appendPair(document, "spans", spans)
	}

	var out bytes.Buffer
	encoder := yaml.NewEncoder(&out)
	encoder.SetIndent(2)
	if err := encoder.Encode(document); err != nil {
		return nil, fmt.Errorf("encoding text projection: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoding text projection: %w", err)
	}
	return out.Bytes(), nil
}

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode}
}

func appendPair(parent *yaml.Node, key string, value *yaml.Node) {
	parent.Content = append(parent.Content, plain(key), value)
}

func plain(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func tagged(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

func quoted(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value, Style: yaml.DoubleQuotedStyle}
}

func opaque(data []byte) *yaml.Node {
	return quoted(opaqueTag, hex.EncodeToString(data))
}

func render(node *record.Node, rootVersion int, path string) (*yaml.Node, error) {
	if node == nil {
		return nil, fmt.Errorf("%s: nil node", path)
	}
	switch node.Kind {
	case record.KindOpaque:
		return opaque(node.Raw), nil

	case record.KindComposite:
		tag := recordTagPrefix + node.Type
		if node.Version != rootVersion {
			tag += "@" + strconv.Itoa(node.Version)
		}
		out := mapping()
		out.Tag = tag
		for _, member := range node.Fields {
			value, err := render(member.Value, rootVersion, path+"."+member.Name)
			if err != nil {
				return nil, err
			}
			appendPair(out, member.Name, value)
		}
		return out, nil

	case record.KindList:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: listTagPrefix + node.Type}
		if len(node.Items) == 0 {
			out.Style = yaml.FlowStyle
		}
		for i, item := range node.Items {
			value, err := render(item, rootVersion, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, value)
		}
		return out, nil

	case record.KindScalar:
		return renderScalar(node, path)
	}
	return nil, fmt.Errorf("%s: cannot render %s node", path, node.Kind)
}

func renderScalar(node *record.Node, path string) (*yaml.Node, error) {
	tag := "!" + node.Type
	switch node.Type {
	case schema.Char, schema.CString:
		return renderText(tag, node), nil

	case schema.Bool:
		switch node.Bits {
		case 0:
			return tagged(tag, "false"), nil
		case 1:
			return tagged(tag, "true"), nil
		}
		return tagged(tag, strconv.FormatUint(node.Bits, 10)), nil

	case schema.F32:
		value := float64(math.Float32frombits(uint32(node.Bits)))
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return tagged(tag, fmt.Sprintf("0x%08x", node.Bits)), nil
		}
		return tagged(tag, strconv.FormatFloat(value, 'g', -1, 32)), nil

	case schema.F64:
		value := math.Float64frombits(node.Bits)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return tagged(tag, fmt.Sprintf("0x%016x", node.Bits)), nil
		}
		return tagged(tag, strconv.FormatFloat(value, 'g', -1, 64)), nil
	}

	if !schema.IsInteger(node.Type) {
		return nil, fmt.Errorf("%s: unknown scalar type %q", path, node.Type)
	}
	if schema.IsSigned(node.Type) {
		return tagged(tag, strconv.FormatInt(node.Int(), 10)), nil
	}
	return tagged(tag, strconv.FormatUint(node.Bits, 10)), nil
}

func renderText(tag string, node *record.Node) *yaml.Node {
	if len(node.Raw) > 0 {
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: tag, Style: yaml.FlowStyle}
		appendPair(out, "raw", quoted("", hex.EncodeToString(node.Raw)))
		return out
	}
	if len(node.Tail) > 0 {
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: tag, Style: yaml.FlowStyle}
		appendPair(out, "text", quoted("", node.Text))
		appendPair(out, "tail", quoted("", hex.EncodeToString(node.Tail)))
		return out
	}
	return quoted(tag, node.Text)
}

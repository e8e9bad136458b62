// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package diff

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/schema"
)

// ChangeKind classifies a field-level change.
type ChangeKind int

const (
	// Modified fields exist in both trees with different values.
	Modified ChangeKind = iota
	// Added fields exist only in the second tree.
	Added
	// Removed fields exist only in the first tree.
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Modified:
		return "modified"
	case Added:
		return "added"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("ChangeKind(%d)", int(k))
}

// FieldChange is one difference between two trees. Old is nil for
// Added and New is nil for Removed.
type FieldChange struct {
	Path string
	Kind ChangeKind
	Old  *record.Node
	New  *record.Node
}

func (c FieldChange) String() string {
	switch c.Kind {
	case Added:
		return fmt.Sprintf("+ %s: %s", c.Path, Format(c.New))
	case Removed:
		return fmt.Sprintf("- %s: %s", c.Path, Format(c.Old))
	}
	return fmt.Sprintf("~ %s: %s -> %s", c.Path, Format(c.Old), Format(c.New))
}

// Trees returns the changes turning a into b, in field order of a
// followed by fields only b has. Paths start at the root's type name
// and use the same syntax as record.Node.Lookup; unclaimed spans are
// reported under the path "<type>:span@<offset>".
func Trees(a, b *record.Node) []FieldChange {
	var changes []FieldChange
	root := "record"
	switch {
	case a != nil && a.Type != "":
		root = a.Type
	case b != nil && b.Type != "":
		root = b.Type
	}
	compare(root, a, b, &changes)
	if a != nil && b != nil && a.Kind == record.KindComposite && b.Kind == record.KindComposite {
		compareSpans(root, a.Spans, b.Spans, &changes)
	}
	return changes
}

func compare(path string, a, b *record.Node, changes *[]FieldChange) {
	switch {
	case a == nil && b == nil:
		return
	case a == nil:
		*changes = append(*changes, FieldChange{Path: path, Kind: Added, New: b})
		return
	case b == nil:
		*changes = append(*changes, FieldChange{Path: path, Kind: Removed, Old: a})
		return
	}
	if a.Kind != b.Kind || a.Type != b.Type || a.Version != b.Version {
		*changes = append(*changes, FieldChange{Path: path, Kind: Modified, Old: a, New: b})
		return
	}

	switch a.Kind {
	case record.KindComposite:
		for _, member := range a.Fields {
			compare(path+"."+member.Name, member.Value, b.Field(member.Name), changes)
		}
		for _, member := range b.Fields {
			if a.Field(member.Name) == nil {
				compare(path+"."+member.Name, nil, member.Value, changes)
			}
		}

	case record.KindList:
		for i := range max(len(a.Items), len(b.Items)) {
			var left, right *record.Node
			if i < len(a.Items) {
				left = a.Items[i]
			}
			if i < len(b.Items) {
				right = b.Items[i]
			}
			compare(fmt.Sprintf("%s[%d]", path, i), left, right, changes)
		}

	default:
		if a.Bits != b.Bits || a.Text != b.Text ||
			!bytes.Equal(a.Tail, b.Tail) || !bytes.Equal(a.Raw, b.Raw) {
			*changes = append(*changes, FieldChange{Path: path, Kind: Modified, Old: a, New: b})
		}
	}
}

func compareSpans(root string, a, b []record.Span, changes *[]FieldChange) {
	byOffset := make(map[int][]byte, len(b))
	for _, span := range b {
		byOffset[span.Offset] = span.Data
	}
	seen := make(map[int]bool, len(a))
	spanNode := func(data []byte) *record.Node { return record.NewOpaque(schema.Bytes, data) }
	for _, span := range a {
		seen[span.Offset] = true
		path := fmt.Sprintf("%s:span@%d", root, span.Offset)
		other, ok := byOffset[span.Offset]
		switch {
		case !ok:
			*changes = append(*changes, FieldChange{Path: path, Kind: Removed, Old: spanNode(span.Data)})
		case !bytes.Equal(span.Data, other):
			*changes = append(*changes, FieldChange{Path: path, Kind: Modified, Old: spanNode(span.Data), New: spanNode(other)})
		}
	}
	for _, span := range b {
		if !seen[span.Offset] {
			path := fmt.Sprintf("%s:span@%d", root, span.Offset)
			*changes = append(*changes, FieldChange{Path: path, Kind: Added, New: spanNode(span.Data)})
		}
	}
}

// maxFormattedBytes caps how much opaque data Format prints.
const maxFormattedBytes = 32

// Format renders a node as a short single-line value for change
// listings.
func Format(node *record.Node) string {
	if node == nil {
		return "<none>"
	}
	switch node.Kind {
	case record.KindComposite:
		return fmt.Sprintf("{%s@%d, %d fields}", node.Type, node.Version, len(node.Fields))
	case record.KindList:
		return fmt.Sprintf("[%d × %s]", len(node.Items), node.Type)
	case record.KindOpaque:
		return formatBytes(node.Raw)
	}

	switch node.Type {
	case schema.Char, schema.CString:
		if len(node.Raw) > 0 {
			return "raw " + formatBytes(node.Raw)
		}
		text := strconv.Quote(node.Text)
		if len(node.Tail) > 0 {
			text += " + tail " + formatBytes(node.Tail)
		}
		return text
	case schema.Bool:
		if node.Bits > 1 {
			return strconv.FormatUint(node.Bits, 10)
		}
		return strconv.FormatBool(node.Bool())
	case schema.F32:
		return strconv.FormatFloat(float64(math.Float32frombits(uint32(node.Bits))), 'g', -1, 32)
	case schema.F64:
		return strconv.FormatFloat(node.Float(), 'g', -1, 64)
	}
	if schema.IsSigned(node.Type) {
		return strconv.FormatInt(node.Int(), 10)
	}
	return strconv.FormatUint(node.Bits, 10)
}

func formatBytes(data []byte) string {
	if len(data) <= maxFormattedBytes {
		return "0x" + hex.EncodeToString(data)
	}
	var out strings.Builder
	out.WriteString("0x")
	out.WriteString(hex.EncodeToString(data[:maxFormattedBytes]))
	fmt.Fprintf(&out, "… (%d bytes)", len(data))
	return out.String()
}

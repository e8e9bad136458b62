// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/pakforge/pakforge/lib/diff"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/textproj"
)

// ErrRoundTrip is wrapped by every round-trip failure.
var ErrRoundTrip = errors.New("round trip mismatch")

// Stage names the half of a round trip that failed.
type Stage string

const (
	// StageBinary is decode followed by encode.
	StageBinary Stage = "binary"

	// StageText is render followed by parse.
	StageText Stage = "text"
)

// RoundTripError describes where a round trip diverged. For the
// binary stage Regions locate the differing bytes; for the text
// stage Changes list the fields that did not survive.
type RoundTripError struct {
	Stage   Stage
	Regions []diff.Region
	Changes []diff.FieldChange
}

func (e *RoundTripError) Error() string {
	switch {
	case len(e.Regions) > 0:
		return fmt.Sprintf("%s round trip differs in %d region(s), first %s", e.Stage, len(e.Regions), e.Regions[0])
	case len(e.Changes) > 0:
		return fmt.Sprintf("%s round trip changed %d field(s), first %s", e.Stage, len(e.Changes), e.Changes[0])
	default:
		return fmt.Sprintf("%s round trip differs", e.Stage)
	}
}

func (e *RoundTripError) Unwrap() error {
	return ErrRoundTrip
}

// checkBinary requires encode(decode(data)) to reproduce data.
func (s *Session) checkBinary(codec *record.Codec, data []byte, typeName string, version int) error {
	decoded, err := codec.Decode(data, typeName, version)
	if err != nil {
		return fmt.Errorf("re-decoding encoded record: %w", err)
	}
	encoded, err := codec.Encode(decoded)
	if err != nil {
		return fmt.Errorf("re-encoding record: %w", err)
	}
	if !bytes.Equal(encoded, data) {
		return &RoundTripError{
			Stage:   StageBinary,
			Regions: diff.BytesWithCost(data, encoded, s.config.Decode.MaxDiffCost),
		}
	}
	return nil
}

// checkText requires the text projection of node to parse back to an
// equal tree.
func checkText(node *record.Node) error {
	text, err := textproj.ToText(node)
	if err != nil {
		return fmt.Errorf("rendering text: %w", err)
	}
	parsed, err := textproj.FromText(text)
	if err != nil {
		return fmt.Errorf("parsing rendered text: %w", err)
	}
	if !record.Equal(node, parsed) {
		return &RoundTripError{Stage: StageText, Changes: diff.Trees(node, parsed)}
	}
	return nil
}

// Verify decodes path as typeName and checks that re-encoding
// reproduces the stored bytes exactly and that the text projection
// parses back to the same tree.
func (s *Session) Verify(ctx context.Context, path itempath.Path, typeName string) error {
	data, err := s.namespace.Read(path)
	if err != nil {
		return err
	}
	_, codec, err := s.current()
	if err != nil {
		return err
	}
	node, err := s.decodeBytes(ctx, path, typeName, data)
	if err != nil {
		return err
	}
	encoded, err := codec.Encode(node)
	if err != nil {
		return &ItemError{Path: path, Err: fmt.Errorf("re-encoding record: %w", err)}
	}
	if !bytes.Equal(encoded, data) {
		return &ItemError{Path: path, Err: &RoundTripError{
			Stage:   StageBinary,
			Regions: diff.BytesWithCost(data, encoded, s.config.Decode.MaxDiffCost),
		}}
	}
	if err := checkText(node); err != nil {
		return &ItemError{Path: path, Err: err}
	}
	return nil
}

// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/record"
)

// Result is the outcome for one item of a batch.
type Result struct {
	Path itempath.Path
	Node *record.Node
	Err  error
}

// forEach runs fn for every index with at most decode.parallelism
// calls in flight. fn records its own failures, so one item never
// stops the others.
func (s *Session) forEach(ctx context.Context, count int, fn func(ctx context.Context, index int)) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.config.Decode.Parallelism)
	for index := 0; index < count; index++ {
		group.Go(func() error {
			fn(groupCtx, index)
			return nil
		})
	}
	group.Wait()
}

// DecodeBatch decodes every path as typeName. Results are in the
// order of paths; a failing item sets only its own Err.
func (s *Session) DecodeBatch(ctx context.Context, paths []itempath.Path, typeName string) []Result {
	results := make([]Result, len(paths))
	s.forEach(ctx, len(paths), func(ctx context.Context, index int) {
		results[index].Path = paths[index]
		if err := ctx.Err(); err != nil {
			results[index].Err = err
			return
		}
		results[index].Node, results[index].Err = s.Decode(ctx, paths[index], typeName)
	})
	return results
}

// VerifyBatch runs Verify for every path. Results carry no Node.
func (s *Session) VerifyBatch(ctx context.Context, paths []itempath.Path, typeName string) []Result {
	results := make([]Result, len(paths))
	s.forEach(ctx, len(paths), func(ctx context.Context, index int) {
		results[index].Path = paths[index]
		if err := ctx.Err(); err != nil {
			results[index].Err = err
			return
		}
		results[index].Err = s.Verify(ctx, paths[index], typeName)
	})
	return results
}

// Copyright 2026 The Pakforge Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pakforge/pakforge/lib/cache"
	"github.com/pakforge/pakforge/lib/compress"
	"github.com/pakforge/pakforge/lib/config"
	"github.com/pakforge/pakforge/lib/container"
	"github.com/pakforge/pakforge/lib/fingerprint"
	"github.com/pakforge/pakforge/lib/itempath"
	"github.com/pakforge/pakforge/lib/namespace"
	"github.com/pakforge/pakforge/lib/record"
	"github.com/pakforge/pakforge/lib/schema"
	"github.com/pakforge/pakforge/lib/textproj"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// ItemError attaches an item path to a failure.
type ItemError struct {
	Path itempath.Path
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// Option adjusts Open.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	codecs     *compress.Set
}

// WithRegisterer registers the decode cache metrics with registerer.
func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(o *options) { o.registerer = registerer }
}

// WithCodecs reads and writes containers with codecs instead of
// compress.Default.
func WithCodecs(codecs *compress.Set) Option {
	return func(o *options) { o.codecs = codecs }
}

// Session owns the namespace, registry, codec and cache built from one
// configuration. All methods are safe for concurrent use.
type Session struct {
	config  *config.Config
	logger  *slog.Logger
	options options

	namespace *namespace.Namespace
	cache     *cache.Cache[*record.Node]

	// mu guards the registry and codec, which Reload replaces.
	mu       sync.RWMutex
	registry *schema.Registry
	codec    *record.Codec
	closed   bool
}

// Open builds a session from cfg. Archives that fail to open are
// reported by SourceErrors and skipped; schema definitions that fail to
// load or validate fail Open.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Session, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.codecs == nil {
		o.codecs = compress.Default
	}

	registry, err := loadSchemas(cfg.Schemas)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	decodeCache, err := cache.New(cache.Config[*record.Node]{
		Name:       "records",
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   cfg.Cache.MaxBytes,
		Size:       func(node *record.Node) int64 { return int64(node.Size()) },
		Clone:      (*record.Node).Clone,
		Registerer: o.registerer,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	namespaceOptions := namespace.Options{Codecs: o.codecs, Logger: logger}
	for _, archive := range cfg.Archives {
		namespaceOptions.Archives = append(namespaceOptions.Archives,
			namespace.ArchiveSource{Path: archive.Path, Priority: archive.Priority})
	}
	for _, override := range cfg.Overrides {
		namespaceOptions.Overrides = append(namespaceOptions.Overrides,
			namespace.OverrideSource{Root: override.Path, Priority: override.Priority})
	}
	items, err := namespace.New(namespaceOptions)
	if err != nil {
		decodeCache.Close()
		return nil, err
	}
	for _, sourceErr := range items.SourceErrors() {
		logger.Warn("source skipped", "error", sourceErr)
	}

	logger.Info("session opened",
		"archives", len(cfg.Archives),
		"overrides", len(cfg.Overrides),
		"schema_types", registry.Len(),
	)
	return &Session{
		config:    cfg,
		logger:    logger,
		options:   o,
		namespace: items,
		cache:     decodeCache,
		registry:  registry,
		codec:     record.New(registry),
	}, nil
}

// loadSchemas builds and validates a registry from the bundle and
// definition directories in cfg.
func loadSchemas(cfg config.SchemaConfig) (*schema.Registry, error) {
	registry := schema.NewRegistry()
	if cfg.Bundle != "" {
		if err := registry.LoadFile(cfg.Bundle); err != nil {
			return nil, fmt.Errorf("loading schema bundle: %w", err)
		}
	}
	for _, dir := range cfg.Dirs {
		if err := registry.LoadDir(dir); err != nil {
			return nil, fmt.Errorf("loading schemas from %s: %w", dir, err)
		}
	}
	if err := registry.Validate(); err != nil {
		return nil, fmt.Errorf("validating schemas: %w", err)
	}
	return registry, nil
}

func (s *Session) current() (*schema.Registry, *record.Codec, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, ErrClosed
	}
	return s.registry, s.codec, nil
}

// Config returns the configuration the session was opened with.
func (s *Session) Config() *config.Config { return s.config }

// Namespace returns the session's namespace.
func (s *Session) Namespace() *namespace.Namespace { return s.namespace }

// Registry returns the active schema registry.
func (s *Session) Registry() *schema.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// Cache returns the decode cache.
func (s *Session) Cache() *cache.Cache[*record.Node] { return s.cache }

// SourceErrors reports every archive or override directory the
// namespace could not open.
func (s *Session) SourceErrors() []error {
	return s.namespace.SourceErrors()
}

// schemaTag identifies the definition decode will use for typeName.
// Unknown types decode to opaque nodes and share one tag.
func schemaTag(registry *schema.Registry, typeName string) (string, error) {
	definition, ok := registry.Latest(typeName)
	if !ok {
		return "unknown", nil
	}
	hash, err := definition.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", definition.Key(), err)
	}
	return definition.Key() + ":" + hash.Short(), nil
}

// Decode reads path and decodes it as typeName, using the latest
// registered version. The returned tree belongs to the caller.
func (s *Session) Decode(ctx context.Context, path itempath.Path, typeName string) (*record.Node, error) {
	data, err := s.namespace.Read(path)
	if err != nil {
		return nil, err
	}
	return s.decodeBytes(ctx, path, typeName, data)
}

func (s *Session) decodeBytes(ctx context.Context, path itempath.Path, typeName string, data []byte) (*record.Node, error) {
	registry, codec, err := s.current()
	if err != nil {
		return nil, err
	}
	tag, err := schemaTag(registry, typeName)
	if err != nil {
		return nil, err
	}
	key := cache.Key{
		Item:        path,
		Type:        typeName,
		Fingerprint: fingerprint.Content(data),
		Schema:      tag,
	}
	node, err := s.cache.GetOrCompute(ctx, key, func(context.Context) (*record.Node, error) {
		return codec.Decode(data, typeName, 0)
	})
	if err != nil {
		return nil, &ItemError{Path: path, Err: err}
	}
	return node, nil
}

// Encode encodes node with the active registry.
func (s *Session) Encode(node *record.Node) ([]byte, error) {
	_, codec, err := s.current()
	if err != nil {
		return nil, err
	}
	return codec.Encode(node)
}

// ToText renders node as its text projection.
func (s *Session) ToText(node *record.Node) ([]byte, error) {
	return textproj.ToText(node)
}

// FromText parses a text projection.
func (s *Session) FromText(text []byte) (*record.Node, error) {
	return textproj.FromText(text)
}

// Commit encodes node and writes it as an override for path. With
// decode.verify_on_commit set, the encoded bytes must survive a
// decode and re-encode unchanged before anything is written. The
// cache entry for path is dropped. Commit returns the file written.
func (s *Session) Commit(ctx context.Context, path itempath.Path, node *record.Node) (string, error) {
	_, codec, err := s.current()
	if err != nil {
		return "", err
	}
	data, err := codec.Encode(node)
	if err != nil {
		return "", &ItemError{Path: path, Err: err}
	}
	if s.config.Decode.VerifyOnCommit {
		if err := s.checkBinary(codec, data, node.Type, node.Version); err != nil {
			return "", &ItemError{Path: path, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	file, err := s.namespace.WriteOverride(path, data)
	if err != nil {
		return "", &ItemError{Path: path, Err: err}
	}
	s.cache.Invalidate(path)
	s.logger.Info("record committed", "item", path.String(), "type", node.Type, "file", file, "bytes", len(data))
	return file, nil
}

// CommitText parses text and commits the result.
func (s *Session) CommitText(ctx context.Context, path itempath.Path, text []byte) (string, error) {
	node, err := textproj.FromText(text)
	if err != nil {
		return "", &ItemError{Path: path, Err: err}
	}
	return s.Commit(ctx, path, node)
}

// Pack writes every item under prefix into a new container at output
// using the configured compression.
func (s *Session) Pack(ctx context.Context, prefix itempath.Path, output string) (int, error) {
	return s.namespace.Pack(ctx, prefix, output, container.WriteOptions{
		Compression: s.config.Pack.Compression,
		Codecs:      s.options.codecs,
	})
}

// Reload rereads schema definitions, rescans override directories
// and, with reopen, reopens archives. The cache is emptied. When the
// schemas fail to load, the previous registry stays active and the
// error is returned after the namespace is refreshed.
func (s *Session) Reload(ctx context.Context, reopen bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	registry, schemaErr := loadSchemas(s.config.Schemas)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if schemaErr == nil {
		s.registry = registry
		s.codec = record.New(registry)
	}
	s.mu.Unlock()

	s.namespace.Refresh(namespace.RefreshOptions{ReopenArchives: reopen})
	s.cache.InvalidateAll()
	s.logger.Info("session reloaded", "reopened_archives", reopen, "schemas_reloaded", schemaErr == nil)
	return schemaErr
}

// Watch follows override directories until ctx is done, dropping the
// cache entries of items whose files change. notify, if not nil, is
// called after each batch.
func (s *Session) Watch(ctx context.Context, notify func([]itempath.Path)) error {
	return s.namespace.Watch(ctx, func(paths []itempath.Path) {
		for _, path := range paths {
			s.cache.Invalidate(path)
		}
		if notify != nil {
			notify(paths)
		}
	})
}

// Close releases the namespace and the cache. Further calls fail with
// ErrClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cache.Close()
	return s.namespace.Close()
}

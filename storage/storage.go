// Copyright 2019 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package storage persists serialized graph snapshots in a blob.Store,
// keyed by repository root, so a long-running rpc.Server or CLI invocation
// can avoid a full rebuild when nothing has changed since the last save.
//
// Store wraps a blob.Store the same way a proto.Message-backed blob store
// would, except this module has no protobuf graph message (see the
// serialize package comment), so LoadGraph/StoreGraph round-trip
// serialize.Graph's own bespoke binary encoding instead of proto bytes.
package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/creachadair/badgerstore"
	"github.com/creachadair/ffs/blob"

	"github.com/importprune/prune/serialize"
)

// ErrKeyNotFound is returned by LoadGraph when the specified key is not found.
var ErrKeyNotFound = errors.New("storage: key not found")

// OpenMode controls how Open accesses the underlying database.
type OpenMode int

// Mode constants for Open.
const (
	ReadOnly OpenMode = iota
	ReadWrite
)

// Open opens (creating if necessary) a BadgerDB-backed blob store at path.
// The caller must Close the result when it is no longer needed.
func Open(path string, mode OpenMode) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage: no path was provided")
	}
	var bs *badgerstore.Store
	var err error
	if mode == ReadWrite {
		bs, err = badgerstore.NewPath(path)
	} else {
		bs, err = badgerstore.NewPathReadOnly(path)
	}
	if err != nil {
		return nil, err
	}
	return &Store{bs: bs}, nil
}

// Store wraps a blob.Store with graph-snapshot semantics: a key names a
// repository root (or any caller-chosen label), and the value is a
// serialize.Graph encoded with serialize.Write.
type Store struct {
	bs *badgerstore.Store
}

// Close closes the underlying blob store.
func (s *Store) Close() error { return s.bs.Close() }

// LoadGraph fetches and decodes the graph snapshot stored under key. It
// returns ErrKeyNotFound if no snapshot has been saved for key, and
// *serialize.VersionError if the stored snapshot is in an unsupported
// format: a version mismatch is a hard error, never a silent fallback.
func (s *Store) LoadGraph(ctx context.Context, key string) (*serialize.Graph, error) {
	bits, err := s.bs.Get(ctx, key)
	if errors.Is(err, blob.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	} else if err != nil {
		return nil, err
	}
	return serialize.Read(bytes.NewReader(bits))
}

// StoreGraph encodes g and saves it under key, replacing any prior
// snapshot.
func (s *Store) StoreGraph(ctx context.Context, key string, g *serialize.Graph) error {
	var buf bytes.Buffer
	if err := serialize.Write(&buf, g); err != nil {
		return err
	}
	return s.bs.Put(ctx, blob.PutOptions{
		Key:     key,
		Data:    buf.Bytes(),
		Replace: true,
	})
}

// DeleteGraph removes the snapshot stored under key, if any.
func (s *Store) DeleteGraph(ctx context.Context, key string) error {
	return s.bs.Delete(ctx, key)
}

// Scan calls f once for every key with the given prefix, in lexical order,
// stopping early if f returns an error.
func (s *Store) Scan(ctx context.Context, prefix string, f func(string) error) error {
	return s.bs.List(ctx, prefix, func(key string) error {
		if !strings.HasPrefix(key, prefix) {
			return blob.ErrStopListing
		}
		return f(key)
	})
}

// Package store implements the generic entity store: create, get,
// revision archival and in-place update over any content table and its
// revision table. Callers compose these inside a gorm transaction so a
// logical edit commits atomically or not at all.
package store

import (
	"context"
	defError "errors"
	"fmt"
	"time"

	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"

	"gorm.io/gorm"
)

// metaOf reaches the embedded bookkeeping of any content struct.
func metaOf(entity any) *domain.ContentMeta {
	return entity.(interface{ Meta() *domain.ContentMeta }).Meta()
}

// Store is a generic repository over a content struct T and its revision
// struct R. T must embed domain.ContentMeta and R domain.RevisionMeta.
type Store[T any, R any] struct {
	db       *gorm.DB
	revision func(*T) *R
}

// New creates a store bound to db. revision builds the archived copy of a
// live row.
func New[T any, R any](db *gorm.DB, revision func(*T) *R) *Store[T, R] {
	return &Store[T, R]{db: db, revision: revision}
}

// WithTx rebinds the store to a transaction handle.
func (s *Store[T, R]) WithTx(tx *gorm.DB) *Store[T, R] {
	return &Store[T, R]{db: tx, revision: s.revision}
}

// Create inserts entity as version 1 with empty lock and hashes, then
// re-reads it so generated identifiers and column defaults are visible to
// the caller (hashing requires the durable state).
func (s *Store[T, R]) Create(ctx context.Context, entity *T) (*T, error) {
	m := metaOf(entity)
	m.Version = 1
	m.Hash = ""
	m.ChainHash = ""
	m.Lock = ""
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, m.ID)
}

// Get loads a live row by id.
func (s *Store[T, R]) Get(ctx context.Context, id uint64) (*T, error) {
	var out T
	if err := s.db.WithContext(ctx).First(&out, id).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ArchiveRevision copies entity into its revision table keyed by
// (id, version). Revisions must never be overwritten; re-archiving a
// version is a broken invariant upstream and fails loudly.
func (s *Store[T, R]) ArchiveRevision(ctx context.Context, entity *T) (*R, error) {
	m := metaOf(entity)

	var count int64
	err := s.db.WithContext(ctx).Model(new(R)).
		Where("id = ? AND version = ?", m.ID, m.Version).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("archive id=%d version=%d: %w", m.ID, m.Version, apiError.ErrDuplicateRevision)
	}

	rev := s.revision(entity)
	if err := s.db.WithContext(ctx).Create(rev).Error; err != nil {
		return nil, err
	}
	return rev, nil
}

// Update applies the mutation, increments the version, clears the lock and
// persists, then re-reads so the caller sees the durable state.
func (s *Store[T, R]) Update(ctx context.Context, entity *T, apply func(*T)) (*T, error) {
	m := metaOf(entity)
	if apply != nil {
		apply(entity)
	}
	m.Version++
	m.Lock = ""
	m.Timestamp = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, m.ID)
}

// Save persists the row as-is (used for the second write that stamps the
// computed hashes) and re-reads it.
func (s *Store[T, R]) Save(ctx context.Context, entity *T) (*T, error) {
	if err := s.db.WithContext(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return s.Get(ctx, metaOf(entity).ID)
}

// IsNotFound reports whether err is the store's missing-row error.
func IsNotFound(err error) bool {
	return defError.Is(err, gorm.ErrRecordNotFound)
}

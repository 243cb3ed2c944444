// Package node implements the registry for the anchor entities every
// content item hangs off. A node version is immutable once associated:
// editing the content it points at archives the node row and writes the
// next version, so the node table always shows the current pointer and
// node_revisions the full history.
package node

import (
	"context"
	"fmt"
	"time"

	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/hashing"

	"gorm.io/gorm"
)

const AnonymousUserID uint64 = 0

type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// WithTx rebinds the registry to a transaction handle.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx}
}

// Register creates an empty node content can be attached to. Owner is the
// acting user id, or AnonymousUserID when unauthenticated.
func (r *Registry) Register(ctx context.Context, ownerID uint64) (*domain.Node, error) {
	node := &domain.Node{
		Version:   1,
		UserID:    ownerID,
		Timestamp: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(node).Error; err != nil {
		return nil, fmt.Errorf("register node: %w", err)
	}
	return r.Load(ctx, node.ID)
}

// Load fetches a node by id.
func (r *Registry) Load(ctx context.Context, id uint64) (*domain.Node, error) {
	var node domain.Node
	if err := r.db.WithContext(ctx).First(&node, id).Error; err != nil {
		return nil, err
	}
	return &node, nil
}

// Associate completes a registered node by pointing its first child at the
// given content reference and stamping both hash forms. A node version may
// be associated exactly once; repointing requires Advance.
func (r *Registry) Associate(ctx context.Context, node *domain.Node, ref domain.ChildRef) (*domain.Node, error) {
	if node.FirstChild != "" {
		return nil, fmt.Errorf("node %d v%d: %w", node.ID, node.Version, apiError.ErrAlreadyAssociated)
	}
	node.FirstChild = ref.Encode()
	if err := r.rehashAndSave(ctx, node); err != nil {
		return nil, err
	}
	return r.Load(ctx, node.ID)
}

// Advance supersedes the node row for an edited content item: the current
// row is archived to node_revisions, then the live row gets the next
// version, the new first-child pointer, a cleared lock and fresh hashes.
func (r *Registry) Advance(ctx context.Context, node *domain.Node, ref domain.ChildRef) (*domain.Node, error) {
	if _, err := r.archive(ctx, node); err != nil {
		return nil, err
	}

	node.Version++
	node.FirstChild = ref.Encode()
	node.Lock = ""
	node.Timestamp = time.Now().UTC()
	if err := r.rehashAndSave(ctx, node); err != nil {
		return nil, err
	}
	return r.Load(ctx, node.ID)
}

// SetLock stores an advisory lock token on the node without bumping the
// version; the token is cleared again by the next successful save.
func (r *Registry) SetLock(ctx context.Context, node *domain.Node, token string) error {
	node.Lock = token
	return r.db.WithContext(ctx).Save(node).Error
}

func (r *Registry) archive(ctx context.Context, node *domain.Node) (*domain.NodeRevision, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.NodeRevision{}).
		Where("id = ? AND version = ?", node.ID, node.Version).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, fmt.Errorf("archive node id=%d version=%d: %w", node.ID, node.Version, apiError.ErrDuplicateRevision)
	}

	rev := domain.NewNodeRevision(node)
	if err := r.db.WithContext(ctx).Create(rev).Error; err != nil {
		return nil, err
	}
	return rev, nil
}

// rehashAndSave computes the chain digest over the prior hash values, then
// the content digest, assigns both and persists.
func (r *Registry) rehashAndSave(ctx context.Context, node *domain.Node) error {
	hash, chainHash, err := hashing.Pair(node)
	if err != nil {
		return err
	}
	node.Hash = hash
	node.ChainHash = chainHash
	return r.db.WithContext(ctx).Save(node).Error
}

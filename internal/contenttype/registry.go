// Package contenttype maps logical content-type names to concrete entity
// schemas. Types are themselves content: their defining rows live in the
// content_types table, anchored by nodes whose first child points back at
// them, and are revisioned like everything else.
package contenttype

import (
	"context"
	defError "errors"
	"fmt"

	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/hashing"
	"ledger-cms/internal/node"
	"ledger-cms/internal/store"

	"gorm.io/gorm"
)

// Definition is the bootstrap input for one content type.
type Definition struct {
	Name           string
	ContentClass   string
	EditableFields string
	ViewableFields string
	EditURL        string
	ViewURL        string
}

// Resolved is the full result of loading a node generically: the node, the
// concrete content row it points at, and the governing type. When the node
// anchors a type-definition row itself, IsTypeDefinition is set and Type is
// a defensive copy so mutating Content cannot corrupt the type snapshot.
type Resolved struct {
	Node             *domain.Node        `json:"node"`
	Content          domain.Content      `json:"content"`
	Type             *domain.ContentType `json:"type"`
	IsTypeDefinition bool                `json:"is_type_definition"`
}

type Registry struct {
	db    *gorm.DB
	nodes *node.Registry
	kinds map[string]Kind
}

func NewRegistry(db *gorm.DB, nodes *node.Registry) *Registry {
	return &Registry{db: db, nodes: nodes, kinds: builtinKinds()}
}

// WithTx rebinds the registry to a transaction handle.
func (r *Registry) WithTx(tx *gorm.DB) *Registry {
	return &Registry{db: tx, nodes: r.nodes.WithTx(tx), kinds: r.kinds}
}

// Dispatch returns the kind handle for the type's concrete content class.
func (r *Registry) Dispatch(ct *domain.ContentType) (Kind, error) {
	k, err := r.KindByClass(ct.ContentClass)
	if err != nil {
		return nil, fmt.Errorf("content type %q: %w", ct.Name, err)
	}
	return k, nil
}

func (r *Registry) KindByClass(class string) (Kind, error) {
	k, ok := r.kinds[class]
	if !ok {
		return nil, fmt.Errorf("class %q: %w", class, apiError.ErrUnknownContentClass)
	}
	return k, nil
}

func (r *Registry) LookupByName(ctx context.Context, name string) (*domain.ContentType, error) {
	var ct domain.ContentType
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&ct).Error; err != nil {
		return nil, err
	}
	return &ct, nil
}

// LookupByNode finds the type definition anchored by the given node id.
func (r *Registry) LookupByNode(ctx context.Context, nodeID uint64) (*domain.ContentType, error) {
	var ct domain.ContentType
	if err := r.db.WithContext(ctx).Where("node_id = ?", nodeID).First(&ct).Error; err != nil {
		return nil, err
	}
	return &ct, nil
}

// Ensure bootstraps a content type at most once per name. An existing row
// is returned untouched together with ErrAlreadyExists so callers can
// no-op; concurrent bootstrap losers land on the unique name index and are
// treated the same way.
func (r *Registry) Ensure(ctx context.Context, def Definition) (*domain.Node, *domain.ContentType, error) {
	if existing, err := r.LookupByName(ctx, def.Name); err == nil {
		return nil, existing, fmt.Errorf("content type %q: %w", def.Name, apiError.ErrAlreadyExists)
	} else if !store.IsNotFound(err) {
		return nil, nil, err
	}

	var (
		anchor  *domain.Node
		created *domain.ContentType
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes := r.nodes.WithTx(tx)
		types := store.New(tx, domain.NewContentTypeRevision)

		n, err := nodes.Register(ctx, node.AnonymousUserID)
		if err != nil {
			return err
		}

		ct, err := types.Create(ctx, &domain.ContentType{
			ContentMeta:    domain.ContentMeta{NodeID: n.ID},
			Name:           def.Name,
			ContentClass:   def.ContentClass,
			EditableFields: def.EditableFields,
			ViewableFields: def.ViewableFields,
			EditURL:        def.EditURL,
			ViewURL:        def.ViewURL,
		})
		if err != nil {
			if defError.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("content type %q: %w", def.Name, apiError.ErrAlreadyExists)
			}
			return err
		}

		hash, chainHash, err := hashing.Pair(ct)
		if err != nil {
			return err
		}
		ct.Hash = hash
		ct.ChainHash = chainHash
		if ct, err = types.Save(ctx, ct); err != nil {
			return err
		}

		// Self-referential anchor: the type id in the pointer is the
		// type's own node
		n, err = nodes.Associate(ctx, n, domain.ChildRef{
			ContentID:       ct.ID,
			ContentRevision: ct.Version,
			ContentTypeID:   n.ID,
		})
		if err != nil {
			return err
		}

		anchor = n
		created = ct
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return anchor, created, nil
}

// Resolve loads the content a node points at. The node does not know the
// concrete row type; the type definition referenced in first_child does.
func (r *Registry) Resolve(ctx context.Context, n *domain.Node) (*Resolved, error) {
	if n.FirstChild == "" {
		return nil, fmt.Errorf("node %d has no content: %w", n.ID, gorm.ErrRecordNotFound)
	}
	ref, err := domain.ParseChildRef(n.FirstChild)
	if err != nil {
		return nil, fmt.Errorf("node %d first_child: %w", n.ID, err)
	}

	ct, err := r.LookupByNode(ctx, ref.ContentTypeID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %d type: %w", n.ID, err)
	}

	// The node anchors the type definition itself: the definition row is
	// both the content and its own type.
	if ref.ContentTypeID == n.ID {
		typeCopy := *ct
		return &Resolved{Node: n, Content: ct, Type: &typeCopy, IsTypeDefinition: true}, nil
	}

	k, err := r.Dispatch(ct)
	if err != nil {
		return nil, err
	}
	content, err := k.Get(ctx, r.db, ref.ContentID)
	if err != nil {
		return nil, fmt.Errorf("resolve node %d content: %w", n.ID, err)
	}
	return &Resolved{Node: n, Content: content, Type: ct}, nil
}

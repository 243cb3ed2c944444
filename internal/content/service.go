// Package content implements the save/load orchestration every content
// kind goes through: resolve the type, check the advisory locks, archive
// the current revision, apply the filtered field updates, rehash, and
// repoint the node.
package content

import (
	"context"
	"encoding/json"
	defError "errors"
	"fmt"
	"time"

	"ledger-cms/internal/contenttype"
	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/filter"
	"ledger-cms/internal/hashing"
	"ledger-cms/internal/lock"
	"ledger-cms/internal/logger"
	"ledger-cms/internal/node"
	"ledger-cms/redis"

	"gorm.io/gorm"
)

// Actor identifies who is performing a save or edit. A zero ID means
// anonymous.
type Actor struct {
	ID       uint64
	Username string
}

// NodeRef addresses the node version the caller was editing.
type NodeRef struct {
	ID      uint64
	Version uint64
}

// SaveInput carries one normalized submission: flat field values, an
// optional node reference for edits, and the acting user.
type SaveInput struct {
	Fields  map[string]string
	NodeRef *NodeRef
	Actor   Actor
}

// Rejection reports an edit blocked by someone else's advisory lock. The
// submitted fields come back unchanged so the caller can redisplay them.
type Rejection struct {
	LockedBy lock.Token        `json:"locked_by"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// Result is the outcome of a save or begin-edit: exactly one of Resolved
// or Rejected is set.
type Result struct {
	Resolved *contenttype.Resolved `json:"resolved,omitempty"`
	Rejected *Rejection            `json:"rejected,omitempty"`
}

// Entry is one row of the content-control listing.
type Entry struct {
	NodeID         uint64    `json:"node_id"`
	NodeVersion    uint64    `json:"node_version"`
	TypeName       string    `json:"type_name"`
	ContentClass   string    `json:"content_class"`
	ContentID      uint64    `json:"content_id"`
	ContentVersion uint64    `json:"content_version"`
	EditURL        string    `json:"edit_url"`
	ViewURL        string    `json:"view_url"`
	Timestamp      time.Time `json:"timestamp"`
	Locked         bool      `json:"locked"`
}

// ListMeta describes one page of the content-control listing.
type ListMeta struct {
	Total       int64 `json:"total"`
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	TotalPage   int   `json:"total_page"`
}

// BuildNotifier is told when a site row was saved.
type BuildNotifier interface {
	NotifyBuild(site *domain.Site)
}

type Service interface {
	Save(ctx context.Context, typeName string, in SaveInput) (*Result, error)
	Load(ctx context.Context, nodeID uint64) (*contenttype.Resolved, error)
	LoadView(ctx context.Context, nodeID uint64) (json.RawMessage, error)
	BeginEdit(ctx context.Context, nodeID uint64, actor Actor) (*Result, error)
	ListContent(ctx context.Context, page, pageSize int) ([]Entry, ListMeta, error)
}

type DefaultService struct {
	db       *gorm.DB
	nodes    *node.Registry
	types    *contenttype.Registry
	cache    *redis.Cache
	notifier BuildNotifier
}

func NewService(
	db *gorm.DB,
	nodes *node.Registry,
	types *contenttype.Registry,
	cache *redis.Cache,
	notifier BuildNotifier,
) Service {
	return &DefaultService{
		db:       db,
		nodes:    nodes,
		types:    types,
		cache:    cache,
		notifier: notifier,
	}
}

// Save runs the create-or-update orchestration for one content kind. A
// missing type row is a deployment fault, not user error.
func (s *DefaultService) Save(ctx context.Context, typeName string, in SaveInput) (*Result, error) {
	ct, err := s.types.LookupByName(ctx, typeName)
	if err != nil {
		if defError.Is(err, gorm.ErrRecordNotFound) {
			logger.Log.Error().Str("type", typeName).Msg("content type not bootstrapped, cannot serve this kind")
			return nil, fmt.Errorf("content type %q: %w", typeName, apiError.ErrMissingContentType)
		}
		return nil, err
	}

	k, err := s.types.Dispatch(ct)
	if err != nil {
		logger.Log.Error().Str("type", typeName).Str("class", ct.ContentClass).Msg("content type references unknown class")
		return nil, err
	}

	if in.NodeRef == nil {
		return s.create(ctx, ct, k, in)
	}
	return s.update(ctx, ct, k, in)
}

func (s *DefaultService) create(ctx context.Context, ct *domain.ContentType, k contenttype.Kind, in SaveInput) (*Result, error) {
	fields, err := s.filterFields(ct, in.Fields)
	if err != nil {
		return nil, err
	}

	var res *contenttype.Resolved
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes := s.nodes.WithTx(tx)

		n, err := nodes.Register(ctx, in.Actor.ID)
		if err != nil {
			return err
		}

		entity := k.New()
		entity.Meta().NodeID = n.ID
		k.Apply(entity, fields)

		entity, err = k.Create(ctx, tx, entity)
		if err != nil {
			return err
		}

		// the row has a durable id now, the hash can be stamped
		hash, chainHash, err := hashing.Pair(entity)
		if err != nil {
			return err
		}
		entity.Meta().Hash = hash
		entity.Meta().ChainHash = chainHash
		if entity, err = k.Save(ctx, tx, entity); err != nil {
			return err
		}

		n, err = nodes.Associate(ctx, n, domain.ChildRef{
			ContentID:       entity.Meta().ID,
			ContentRevision: entity.Meta().Version,
			ContentTypeID:   ct.NodeID,
		})
		if err != nil {
			return err
		}

		res = &contenttype.Resolved{Node: n, Content: entity, Type: ct}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	return &Result{Resolved: res}, nil
}

func (s *DefaultService) update(ctx context.Context, ct *domain.ContentType, k contenttype.Kind, in SaveInput) (*Result, error) {
	n, err := s.nodes.Load(ctx, in.NodeRef.ID)
	if err != nil {
		return nil, err
	}
	if in.NodeRef.Version != n.Version {
		return nil, apiError.Conflict("Node version is stale, reload before editing", nil)
	}

	if blocked, holder := lock.IsLockedByOther(n.Lock, in.Actor.ID); blocked {
		return &Result{Rejected: &Rejection{LockedBy: *holder, Fields: in.Fields}}, nil
	}

	current, err := s.types.Resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	if blocked, holder := lock.IsLockedByOther(current.Content.Meta().Lock, in.Actor.ID); blocked {
		return &Result{Rejected: &Rejection{LockedBy: *holder, Fields: in.Fields}}, nil
	}

	fields := in.Fields
	bypass, err := s.policyUnchanged(current)
	if err != nil {
		return nil, err
	}
	if !bypass {
		if fields, err = s.filterFields(ct, in.Fields); err != nil {
			return nil, err
		}
	}

	var res *contenttype.Resolved
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		nodes := s.nodes.WithTx(tx)

		if err := k.Archive(ctx, tx, current.Content); err != nil {
			return err
		}

		entity, err := k.Update(ctx, tx, current.Content, fields)
		if err != nil {
			return err
		}

		hash, chainHash, err := hashing.Pair(entity)
		if err != nil {
			return err
		}
		entity.Meta().Hash = hash
		entity.Meta().ChainHash = chainHash
		if entity, err = k.Save(ctx, tx, entity); err != nil {
			return err
		}

		n, err = nodes.Advance(ctx, n, domain.ChildRef{
			ContentID:       entity.Meta().ID,
			ContentRevision: entity.Meta().Version,
			ContentTypeID:   current.Type.NodeID,
		})
		if err != nil {
			return err
		}

		res = &contenttype.Resolved{
			Node:             n,
			Content:          entity,
			Type:             current.Type,
			IsTypeDefinition: current.IsTypeDefinition,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterSave(ctx, res)
	return &Result{Resolved: res}, nil
}

// policyUnchanged reports whether the row being edited is the type's own
// definition row in its last-saved state; field filtering is skipped then,
// the policy would be filtering its own definition.
func (s *DefaultService) policyUnchanged(current *contenttype.Resolved) (bool, error) {
	if !current.IsTypeDefinition {
		return false, nil
	}
	contentDigest, err := hashing.Digest(current.Content, false)
	if err != nil {
		return false, err
	}
	typeDigest, err := hashing.Digest(current.Type, false)
	if err != nil {
		return false, err
	}
	return contentDigest == typeDigest, nil
}

func (s *DefaultService) filterFields(ct *domain.ContentType, fields map[string]string) (map[string]string, error) {
	policy, err := filter.ParsePolicy(ct.EditableFields)
	if err != nil {
		return nil, fmt.Errorf("content type %q editable policy: %w", ct.Name, err)
	}
	return policy.Apply(fields), nil
}

// Load resolves a node straight from storage.
func (s *DefaultService) Load(ctx context.Context, nodeID uint64) (*contenttype.Resolved, error) {
	n, err := s.nodes.Load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	return s.types.Resolve(ctx, n)
}

// LoadView is Load behind the version-keyed cache: the cache key embeds
// the node's invalidation counter, so stale entries drop out on every save
// and simply expire.
func (s *DefaultService) LoadView(ctx context.Context, nodeID uint64) (json.RawMessage, error) {
	v := s.cache.GetVersion(ctx, nodeVersionKey(nodeID))
	cacheKey := fmt.Sprintf("node:%d:v:%d", nodeID, v)

	var cached json.RawMessage
	if found, _ := s.cache.Get(ctx, cacheKey, &cached); found {
		return cached, nil
	}

	res, err := s.Load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(viewPayload(res))
	if err != nil {
		return nil, err
	}

	go s.cache.Set(context.Background(), cacheKey, json.RawMessage(raw), 24*time.Hour)
	return raw, nil
}

// BeginEdit sets the advisory lock on the node and its content for a
// long-running editing session. The lock is advisory: it blocks a second
// editor's save, not their read.
func (s *DefaultService) BeginEdit(ctx context.Context, nodeID uint64, actor Actor) (*Result, error) {
	n, err := s.nodes.Load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if blocked, holder := lock.IsLockedByOther(n.Lock, actor.ID); blocked {
		return &Result{Rejected: &Rejection{LockedBy: *holder}}, nil
	}

	current, err := s.types.Resolve(ctx, n)
	if err != nil {
		return nil, err
	}
	if blocked, holder := lock.IsLockedByOther(current.Content.Meta().Lock, actor.ID); blocked {
		return &Result{Rejected: &Rejection{LockedBy: *holder}}, nil
	}

	token := lock.New(actor.ID, actor.Username)
	class := current.Type.ContentClass
	if current.IsTypeDefinition {
		// the row under edit is the definition itself, not an instance
		// of the class it defines
		class = domain.ClassContentType
	}
	k, err := s.types.KindByClass(class)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.nodes.WithTx(tx).SetLock(ctx, n, token); err != nil {
			return err
		}
		current.Content.Meta().Lock = token
		_, err := k.Save(ctx, tx, current.Content)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.cache.IncrementVersion(ctx, nodeVersionKey(nodeID))
	current.Node = n
	return &Result{Resolved: current}, nil
}

// ListContent returns one page of the content-control listing: associated
// nodes with their type and edit target. Nodes that fail to resolve are
// logged and skipped rather than breaking the whole listing.
func (s *DefaultService) ListContent(ctx context.Context, page, pageSize int) ([]Entry, ListMeta, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&domain.Node{}).
		Where("first_child <> ''").
		Count(&total).Error
	if err != nil {
		return nil, ListMeta{}, err
	}

	var nodes []domain.Node
	err = s.db.WithContext(ctx).
		Where("first_child <> ''").
		Order("id").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&nodes).Error
	if err != nil {
		return nil, ListMeta{}, err
	}

	entries := make([]Entry, 0, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		res, err := s.types.Resolve(ctx, n)
		if err != nil {
			logger.Log.Warn().Err(err).Uint64("node_id", n.ID).Msg("skipping unresolvable node in listing")
			continue
		}
		m := res.Content.Meta()
		class := res.Type.ContentClass
		if res.IsTypeDefinition {
			class = domain.ClassContentType
		}
		entries = append(entries, Entry{
			NodeID:         n.ID,
			NodeVersion:    n.Version,
			TypeName:       res.Type.Name,
			ContentClass:   class,
			ContentID:      m.ID,
			ContentVersion: m.Version,
			EditURL:        res.Type.EditURL,
			ViewURL:        res.Type.ViewURL,
			Timestamp:      m.Timestamp,
			Locked:         m.Lock != "" || n.Lock != "",
		})
	}

	meta := ListMeta{
		Total:       total,
		CurrentPage: page,
		PerPage:     pageSize,
		TotalPage:   int((total + int64(pageSize) - 1) / int64(pageSize)),
	}
	return entries, meta, nil
}

func (s *DefaultService) afterSave(ctx context.Context, res *contenttype.Resolved) {
	s.cache.IncrementVersion(ctx, nodeVersionKey(res.Node.ID))

	if site, ok := res.Content.(*domain.Site); ok && s.notifier != nil {
		s.notifier.NotifyBuild(site)
	}
}

func nodeVersionKey(nodeID uint64) string {
	return fmt.Sprintf("node:%d:version", nodeID)
}

// viewPayload shapes a resolved node for the public view route. User rows
// are stripped of their credential hash.
func viewPayload(res *contenttype.Resolved) any {
	content := any(res.Content)
	if u, ok := res.Content.(*domain.User); ok {
		content = u.ToSafeUser()
	}
	return struct {
		Node             *domain.Node        `json:"node"`
		Content          any                 `json:"content"`
		Type             *domain.ContentType `json:"type"`
		IsTypeDefinition bool                `json:"is_type_definition"`
	}{res.Node, content, res.Type, res.IsTypeDefinition}
}

package contenttype

import (
	"context"
	"fmt"

	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/store"

	"gorm.io/gorm"
)

// Kind is the handle the registry dispatches to for one concrete content
// table. The set of kinds is closed and enumerated at startup; there is no
// runtime lookup of type names outside this registry.
type Kind interface {
	Class() string
	New() domain.Content
	Get(ctx context.Context, db *gorm.DB, id uint64) (domain.Content, error)
	Create(ctx context.Context, db *gorm.DB, content domain.Content) (domain.Content, error)
	Save(ctx context.Context, db *gorm.DB, content domain.Content) (domain.Content, error)
	Update(ctx context.Context, db *gorm.DB, content domain.Content, fields map[string]string) (domain.Content, error)
	Archive(ctx context.Context, db *gorm.DB, content domain.Content) error
	Apply(content domain.Content, fields map[string]string)
}

// kind implements Kind generically for a content struct T and its
// revision struct R.
type kind[T any, R any] struct {
	class    string
	revision func(*T) *R
	apply    func(*T, map[string]string)
}

func newKind[T any, R any](class string, revision func(*T) *R, apply func(*T, map[string]string)) Kind {
	return &kind[T, R]{class: class, revision: revision, apply: apply}
}

func (k *kind[T, R]) store(db *gorm.DB) *store.Store[T, R] {
	return store.New(db, k.revision)
}

func (k *kind[T, R]) cast(content domain.Content) (*T, error) {
	t, ok := any(content).(*T)
	if !ok {
		return nil, fmt.Errorf("content is %T, want %s: %w", content, k.class, apiError.ErrUnknownContentClass)
	}
	return t, nil
}

func (k *kind[T, R]) Class() string { return k.class }

func (k *kind[T, R]) New() domain.Content {
	return any(new(T)).(domain.Content)
}

func (k *kind[T, R]) Get(ctx context.Context, db *gorm.DB, id uint64) (domain.Content, error) {
	t, err := k.store(db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return any(t).(domain.Content), nil
}

func (k *kind[T, R]) Create(ctx context.Context, db *gorm.DB, content domain.Content) (domain.Content, error) {
	t, err := k.cast(content)
	if err != nil {
		return nil, err
	}
	created, err := k.store(db).Create(ctx, t)
	if err != nil {
		return nil, err
	}
	return any(created).(domain.Content), nil
}

func (k *kind[T, R]) Save(ctx context.Context, db *gorm.DB, content domain.Content) (domain.Content, error) {
	t, err := k.cast(content)
	if err != nil {
		return nil, err
	}
	saved, err := k.store(db).Save(ctx, t)
	if err != nil {
		return nil, err
	}
	return any(saved).(domain.Content), nil
}

func (k *kind[T, R]) Update(ctx context.Context, db *gorm.DB, content domain.Content, fields map[string]string) (domain.Content, error) {
	t, err := k.cast(content)
	if err != nil {
		return nil, err
	}
	updated, err := k.store(db).Update(ctx, t, func(row *T) {
		k.apply(row, fields)
	})
	if err != nil {
		return nil, err
	}
	return any(updated).(domain.Content), nil
}

func (k *kind[T, R]) Archive(ctx context.Context, db *gorm.DB, content domain.Content) error {
	t, err := k.cast(content)
	if err != nil {
		return err
	}
	_, err = k.store(db).ArchiveRevision(ctx, t)
	return err
}

func (k *kind[T, R]) Apply(content domain.Content, fields map[string]string) {
	if t, err := k.cast(content); err == nil {
		k.apply(t, fields)
	}
}

// builtinKinds enumerates every dispatchable content class.
func builtinKinds() map[string]Kind {
	return map[string]Kind{
		domain.ClassUser:        newKind(domain.ClassUser, domain.NewUserRevision, applyUser),
		domain.ClassArticle:     newKind(domain.ClassArticle, domain.NewArticleRevision, applyArticle),
		domain.ClassSite:        newKind(domain.ClassSite, domain.NewSiteRevision, applySite),
		domain.ClassContentType: newKind(domain.ClassContentType, domain.NewContentTypeRevision, applyContentType),
	}
}

func applyUser(u *domain.User, fields map[string]string) {
	if v, ok := fields["username"]; ok {
		u.Username = v
	}
	if v, ok := fields["email"]; ok {
		u.Email = v
	}
	if v, ok := fields["password_hash"]; ok {
		u.PasswordHash = v
	}
	if v, ok := fields["roles"]; ok {
		u.Roles = v
	}
}

func applyArticle(a *domain.Article, fields map[string]string) {
	if v, ok := fields["title"]; ok {
		a.Title = v
	}
	if v, ok := fields["body"]; ok {
		a.Body = v
	}
	if v, ok := fields["tags"]; ok {
		a.Tags = v
	}
}

func applySite(s *domain.Site, fields map[string]string) {
	if v, ok := fields["site_name"]; ok {
		s.SiteName = v
	}
	if v, ok := fields["environment_name"]; ok {
		s.EnvironmentName = v
	}
	if v, ok := fields["local_build_dir"]; ok {
		s.LocalBuildDir = v
	}
	if v, ok := fields["static_files_dir"]; ok {
		s.StaticFilesDir = v
	}
	if v, ok := fields["hosting_type"]; ok {
		s.HostingType = v
	}
	if v, ok := fields["index_content"]; ok {
		s.IndexContent = v
	}
	if v, ok := fields["menu_content"]; ok {
		s.MenuContent = v
	}
	if v, ok := fields["groups_content"]; ok {
		s.GroupsContent = v
	}
	if v, ok := fields["builder_url"]; ok {
		s.BuilderURL = v
	}
}

func applyContentType(t *domain.ContentType, fields map[string]string) {
	if v, ok := fields["name"]; ok {
		t.Name = v
	}
	if v, ok := fields["content_class"]; ok {
		t.ContentClass = v
	}
	if v, ok := fields["editable_fields"]; ok {
		t.EditableFields = v
	}
	if v, ok := fields["viewable_fields"]; ok {
		t.ViewableFields = v
	}
	if v, ok := fields["edit_url"]; ok {
		t.EditURL = v
	}
	if v, ok := fields["view_url"]; ok {
		t.ViewURL = v
	}
}

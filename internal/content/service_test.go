package content

import (
	"context"
	"encoding/json"
	"testing"

	"ledger-cms/internal/contenttype"
	"ledger-cms/internal/db"
	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"
	"ledger-cms/internal/lock"
	"ledger-cms/internal/node"
	"ledger-cms/redis"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingNotifier struct {
	sites []string
}

func (r *recordingNotifier) NotifyBuild(site *domain.Site) {
	r.sites = append(r.sites, site.SiteName)
}

type fixture struct {
	db       *gorm.DB
	nodes    *node.Registry
	types    *contenttype.Registry
	service  Service
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// one connection so every query sees the same in-memory database
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.MigrateModels(gdb))

	nodes := node.NewRegistry(gdb)
	types := contenttype.NewRegistry(gdb, nodes)
	notifier := &recordingNotifier{}
	svc := NewService(gdb, nodes, types, (*redis.Cache)(nil), notifier)

	return &fixture{db: gdb, nodes: nodes, types: types, service: svc, notifier: notifier}
}

func (f *fixture) ensureType(t *testing.T, def contenttype.Definition) {
	t.Helper()
	_, _, err := f.types.Ensure(context.Background(), def)
	require.NoError(t, err)
}

func articleType() contenttype.Definition {
	return contenttype.Definition{
		Name:           TypeArticle,
		ContentClass:   domain.ClassArticle,
		EditableFields: `{"title": {"filter": "NONE"}, "body": {"filter": "NONE"}, "tags": {"filter": "PLAIN_TEXT"}}`,
		ViewableFields: `{"title": {"visible": "true"}, "body": {"visible": "true"}}`,
		EditURL:        "/edit/article",
		ViewURL:        "/view",
	}
}

func siteType() contenttype.Definition {
	return contenttype.Definition{
		Name:           TypeSite,
		ContentClass:   domain.ClassSite,
		EditableFields: `{"site_name": {"filter": "NONE"}, "environment_name": {"filter": "NONE"}, "builder_url": {"filter": "NONE"}}`,
		ViewableFields: `{"site_name": {"visible": "true"}}`,
		EditURL:        "/edit/site",
		ViewURL:        "/view",
	}
}

func TestLoadViewSanitizesUser(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, contenttype.Definition{
		Name:           TypeUser,
		ContentClass:   domain.ClassUser,
		EditableFields: `{"username": {"filter": "REGEX", "data": "^\\w+$"}, "email": {"filter": "NONE"}, "password_hash": {"filter": "NONE"}, "roles": {"filter": "PLAIN_TEXT"}}`,
		ViewableFields: `{"username": {"visible": "true"}}`,
		EditURL:        "/edit/user",
		ViewURL:        "/view",
	})
	ctx := context.Background()

	result, err := f.service.Save(ctx, TypeUser, SaveInput{
		Fields: map[string]string{
			"username":      "alice",
			"email":         "alice@example.com",
			"password_hash": "$2a$10$notarealhash",
		},
		Actor: Actor{ID: 1, Username: "root"},
	})
	require.NoError(t, err)

	raw, err := f.service.LoadView(ctx, result.Resolved.Node.ID)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"username":"alice"`)
	assert.NotContains(t, string(raw), "notarealhash")

	var payload struct {
		Content map[string]any `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &payload))
	_, exposed := payload.Content["password_hash"]
	assert.False(t, exposed)
}

func TestSaveNewArticle(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()

	result, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)
	require.Nil(t, result.Rejected)

	res := result.Resolved
	assert.Equal(t, uint64(1), res.Node.Version)
	assert.Equal(t, uint64(5), res.Node.UserID)
	assert.NotEmpty(t, res.Node.FirstChild)
	assert.NotEmpty(t, res.Node.Hash)

	article, ok := res.Content.(*domain.Article)
	require.True(t, ok)
	assert.Equal(t, uint64(1), article.Version)
	assert.Equal(t, "Hello", article.Title)
	assert.Equal(t, "World", article.Body)
	assert.Equal(t, res.Node.ID, article.NodeID)
	assert.NotEmpty(t, article.Hash)
	assert.NotEmpty(t, article.ChainHash)

	loaded, err := f.service.Load(ctx, res.Node.ID)
	require.NoError(t, err)
	got := loaded.Content.(*domain.Article)
	assert.Equal(t, "Hello", got.Title)
	assert.Equal(t, "World", got.Body)
}

func TestEditArchivesAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()
	actor := Actor{ID: 5, Username: "alice"}

	created, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  actor,
	})
	require.NoError(t, err)
	n := created.Resolved.Node
	firstHash := created.Resolved.Content.Meta().Hash

	edited, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields:  map[string]string{"title": "Hello Again", "body": "World"},
		NodeRef: &NodeRef{ID: n.ID, Version: n.Version},
		Actor:   actor,
	})
	require.NoError(t, err)
	require.Nil(t, edited.Rejected)

	article := edited.Resolved.Content.(*domain.Article)
	assert.Equal(t, uint64(2), article.Version)
	assert.Equal(t, "Hello Again", article.Title)
	assert.Empty(t, article.Lock)

	var rev domain.ArticleRevision
	require.NoError(t, f.db.Where("id = ? AND version = ?", article.ID, 1).First(&rev).Error)
	assert.Equal(t, "Hello", rev.Title)
	assert.Equal(t, "World", rev.Body)
	assert.Equal(t, firstHash, rev.Hash)

	assert.Equal(t, uint64(2), edited.Resolved.Node.Version)
	ref, err := domain.ParseChildRef(edited.Resolved.Node.FirstChild)
	require.NoError(t, err)
	assert.Equal(t, article.ID, ref.ContentID)
	assert.Equal(t, uint64(2), ref.ContentRevision)

	var nodeRev domain.NodeRevision
	require.NoError(t, f.db.Where("id = ? AND version = ?", n.ID, 1).First(&nodeRev).Error)
	assert.Equal(t, n.FirstChild, nodeRev.FirstChild)
}

func TestEditRejectedWhenLockedByOther(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()

	created, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)
	n := created.Resolved.Node

	_, err = f.service.BeginEdit(ctx, n.ID, Actor{ID: 9, Username: "bob"})
	require.NoError(t, err)

	submitted := map[string]string{"title": "Stolen", "body": "Edit"}
	result, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields:  submitted,
		NodeRef: &NodeRef{ID: n.ID, Version: n.Version},
		Actor:   Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Rejected)
	assert.Equal(t, "bob", result.Rejected.LockedBy.Username)
	assert.Equal(t, submitted, result.Rejected.Fields)

	// nothing was written
	loaded, err := f.service.Load(ctx, n.ID)
	require.NoError(t, err)
	article := loaded.Content.(*domain.Article)
	assert.Equal(t, uint64(1), article.Version)
	assert.Equal(t, "Hello", article.Title)

	var count int64
	require.NoError(t, f.db.Model(&domain.ArticleRevision{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLockOwnerMaySave(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()
	actor := Actor{ID: 9, Username: "bob"}

	created, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  actor,
	})
	require.NoError(t, err)
	n := created.Resolved.Node

	begun, err := f.service.BeginEdit(ctx, n.ID, actor)
	require.NoError(t, err)
	require.Nil(t, begun.Rejected)

	holder, err := lock.Parse(begun.Resolved.Content.Meta().Lock)
	require.NoError(t, err)
	assert.Equal(t, "bob", holder.Username)

	result, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields:  map[string]string{"title": "Mine", "body": "World"},
		NodeRef: &NodeRef{ID: n.ID, Version: n.Version},
		Actor:   actor,
	})
	require.NoError(t, err)
	require.Nil(t, result.Rejected)
	assert.Empty(t, result.Resolved.Content.Meta().Lock)
	assert.Empty(t, result.Resolved.Node.Lock)
}

func TestBeginEditRejectedForSecondEditor(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()

	created, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)
	n := created.Resolved.Node

	first, err := f.service.BeginEdit(ctx, n.ID, Actor{ID: 5, Username: "alice"})
	require.NoError(t, err)
	require.Nil(t, first.Rejected)

	second, err := f.service.BeginEdit(ctx, n.ID, Actor{ID: 9, Username: "bob"})
	require.NoError(t, err)
	require.NotNil(t, second.Rejected)
	assert.Equal(t, "alice", second.Rejected.LockedBy.Username)
}

func TestSaveUnknownTypeIsFatalForRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Save(context.Background(), "weblog", SaveInput{
		Fields: map[string]string{"title": "x"},
	})
	require.ErrorIs(t, err, apiError.ErrMissingContentType)
}

func TestSaveStaleNodeVersion(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()
	actor := Actor{ID: 5, Username: "alice"}

	created, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "Hello", "body": "World"},
		Actor:  actor,
	})
	require.NoError(t, err)
	n := created.Resolved.Node

	_, err = f.service.Save(ctx, TypeArticle, SaveInput{
		Fields:  map[string]string{"title": "Late", "body": "World"},
		NodeRef: &NodeRef{ID: n.ID, Version: n.Version + 1},
		Actor:   actor,
	})
	require.Error(t, err)

	var apiErr *apiError.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apiError.CodeConflict, apiErr.Code)
}

func TestEditableFieldPolicyApplied(t *testing.T) {
	f := newFixture(t)
	def := articleType()
	def.EditableFields = `{"title": {"filter": "REGEX", "data": "^\\w+$"}, "body": {"filter": "NONE"}}`
	f.ensureType(t, def)
	ctx := context.Background()

	result, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{
			"title": "al ice<script>!",
			"body":  "<b>raw</b>",
			"tags":  "dropped, not in policy",
		},
		Actor: Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)

	article := result.Resolved.Content.(*domain.Article)
	assert.Equal(t, "alicescript", article.Title)
	assert.Equal(t, "<b>raw</b>", article.Body)
	assert.Empty(t, article.Tags)
}

func TestSiteSaveNotifiesBuilder(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, siteType())

	result, err := f.service.Save(context.Background(), TypeSite, SaveInput{
		Fields: map[string]string{
			"site_name":        "blog",
			"environment_name": "production",
			"builder_url":      "http://builder:9000",
		},
		Actor: Actor{ID: 1, Username: "root"},
	})
	require.NoError(t, err)
	require.Nil(t, result.Rejected)

	require.Len(t, f.notifier.sites, 1)
	assert.Equal(t, "blog", f.notifier.sites[0])
}

func TestListContent(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()

	_, err := f.service.Save(ctx, TypeArticle, SaveInput{
		Fields: map[string]string{"title": "One", "body": "b"},
		Actor:  Actor{ID: 5, Username: "alice"},
	})
	require.NoError(t, err)

	entries, meta, err := f.service.ListContent(ctx, 1, 10)
	require.NoError(t, err)

	// the type-definition node and the article node
	require.Len(t, entries, 2)
	assert.Equal(t, TypeArticle, entries[0].TypeName)
	assert.Equal(t, domain.ClassContentType, entries[0].ContentClass)

	article := entries[1]
	assert.Equal(t, TypeArticle, article.TypeName)
	assert.Equal(t, domain.ClassArticle, article.ContentClass)
	assert.Equal(t, "/edit/article", article.EditURL)
	assert.False(t, article.Locked)

	assert.Equal(t, int64(2), meta.Total)
	assert.Equal(t, 1, meta.TotalPage)
}

func TestListContentPaginates(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three"} {
		_, err := f.service.Save(ctx, TypeArticle, SaveInput{
			Fields: map[string]string{"title": title, "body": "b"},
			Actor:  Actor{ID: 5, Username: "alice"},
		})
		require.NoError(t, err)
	}

	// 4 associated nodes in total: the type definition plus 3 articles
	first, meta, err := f.service.ListContent(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(4), meta.Total)
	assert.Equal(t, 2, meta.TotalPage)
	assert.Equal(t, 1, meta.CurrentPage)
	assert.Equal(t, 2, meta.PerPage)

	second, _, err := f.service.ListContent(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.NotEqual(t, first[0].NodeID, second[0].NodeID)
}

func TestEditTypeDefinitionRow(t *testing.T) {
	f := newFixture(t)
	f.ensureType(t, articleType())
	f.ensureType(t, contenttype.Definition{
		Name:           TypeContentType,
		ContentClass:   domain.ClassContentType,
		EditableFields: `{"name": {"filter": "NONE"}, "content_class": {"filter": "NONE"}, "editable_fields": {"filter": "NONE"}, "viewable_fields": {"filter": "NONE"}, "edit_url": {"filter": "NONE"}, "view_url": {"filter": "NONE"}}`,
		ViewableFields: `{"name": {"visible": "true"}}`,
		EditURL:        "/edit/content-type",
		ViewURL:        "/view",
	})
	ctx := context.Background()

	articleDef, err := f.types.LookupByName(ctx, TypeArticle)
	require.NoError(t, err)

	result, err := f.service.Save(ctx, TypeContentType, SaveInput{
		Fields: map[string]string{
			"edit_url": "/edit/articles-v2",
		},
		NodeRef: &NodeRef{ID: articleDef.NodeID, Version: 1},
		Actor:   Actor{ID: 1, Username: "root"},
	})
	require.NoError(t, err)
	require.Nil(t, result.Rejected)
	assert.True(t, result.Resolved.IsTypeDefinition)

	updated := result.Resolved.Content.(*domain.ContentType)
	assert.Equal(t, uint64(2), updated.Version)
	assert.Equal(t, "/edit/articles-v2", updated.EditURL)
	assert.Equal(t, TypeArticle, updated.Name)

	var rev domain.ContentTypeRevision
	require.NoError(t, f.db.Where("id = ? AND version = ?", updated.ID, 1).First(&rev).Error)
	assert.Equal(t, "/edit/article", rev.EditURL)
}

package contenttype

import (
	"context"
	"testing"

	"ledger-cms/internal/domain"
	apiError "ledger-cms/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindRoundTrip(t *testing.T) {
	gdb := testDb(t)
	reg := NewRegistry(gdb, nil)
	ctx := context.Background()

	k, err := reg.KindByClass(domain.ClassArticle)
	require.NoError(t, err)
	assert.Equal(t, domain.ClassArticle, k.Class())

	content := k.New()
	k.Apply(content, map[string]string{"title": "Hello", "body": "World"})

	created, err := k.Create(ctx, gdb, content)
	require.NoError(t, err)
	article, ok := created.(*domain.Article)
	require.True(t, ok)
	assert.Equal(t, "Hello", article.Title)
	assert.Equal(t, uint64(1), article.Version)

	got, err := k.Get(ctx, gdb, article.ID)
	require.NoError(t, err)
	assert.Equal(t, "World", got.(*domain.Article).Body)

	updated, err := k.Update(ctx, gdb, got, map[string]string{"title": "Changed"})
	require.NoError(t, err)
	assert.Equal(t, "Changed", updated.(*domain.Article).Title)
	assert.Equal(t, uint64(2), updated.Meta().Version)
}

func TestKindRejectsForeignContent(t *testing.T) {
	gdb := testDb(t)
	reg := NewRegistry(gdb, nil)
	ctx := context.Background()

	k, err := reg.KindByClass(domain.ClassArticle)
	require.NoError(t, err)

	_, err = k.Create(ctx, gdb, &domain.User{Username: "alice"})
	require.ErrorIs(t, err, apiError.ErrUnknownContentClass)

	_, err = k.Update(ctx, gdb, &domain.Site{SiteName: "demo"}, nil)
	require.ErrorIs(t, err, apiError.ErrUnknownContentClass)
}

package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

func TestStore_WriteUpsertsByKey(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	scope := sdk.MemoryScope{OrgID: "org-1", SessionID: "sess-1"}

	require.NoError(t, s.Write(ctx, scope, "note", "original content"))
	require.NoError(t, s.Write(ctx, scope, "note", "revised content"))

	hits, err := s.SemanticSearch(ctx, scope, "revised content", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "note", hits[0].Key)
	assert.Equal(t, "revised content", hits[0].Content)
}

func TestStore_SearchRanksByOverlap(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	scope := sdk.MemoryScope{OrgID: "org-1"}

	require.NoError(t, s.Write(ctx, scope, "a", "go compilers and linkers"))
	require.NoError(t, s.Write(ctx, scope, "b", "go compilers"))
	require.NoError(t, s.Write(ctx, scope, "c", "cooking recipes"))

	hits, err := s.SemanticSearch(ctx, scope, "go compilers", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "non-matching entries are excluded")
	assert.Equal(t, float64(1), hits[0].Score)
	assert.True(t, hits[0].Score >= hits[1].Score)
}

func TestStore_SearchHonorsK(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	scope := sdk.MemoryScope{OrgID: "org-1"}

	require.NoError(t, s.Write(ctx, scope, "a", "topic one"))
	require.NoError(t, s.Write(ctx, scope, "b", "topic two"))
	require.NoError(t, s.Write(ctx, scope, "c", "topic three"))

	hits, err := s.SemanticSearch(ctx, scope, "topic", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestStore_ScopesAreIsolated(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, sdk.MemoryScope{OrgID: "org-a"}, "k", "shared topic"))

	hits, err := s.SemanticSearch(ctx, sdk.MemoryScope{OrgID: "org-b"}, "shared topic", 10)
	require.NoError(t, err)
	assert.Empty(t, hits, "scopes never leak into each other")
}

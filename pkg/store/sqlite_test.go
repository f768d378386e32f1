package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanshchauhan21/forge/pkg/forgetype"
)

func testConversation(id string) forgetype.Conversation {
	return forgetype.Conversation{
		ID: id,
		Workflow: forgetype.Workflow{
			Agents: []forgetype.Agent{{ID: "A", Description: "d", ModelID: "m", MaxTurns: 3}},
		},
		AgentStates: map[string]forgetype.AgentState{"A": {}},
		Variables:   map[string]any{"k": "v"},
	}
}

func TestUpsertAndFind(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	defer s.Close()

	conv := testConversation("c1")
	require.NoError(t, s.Upsert(ctx, conv))

	got, ok, err := s.Find(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "v", got.Variables["k"])
}

func TestFindMissing(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Find(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	defer s.Close()

	conv := testConversation("c1")
	require.NoError(t, s.Upsert(ctx, conv))

	conv.Variables["k"] = "updated"
	require.NoError(t, s.Upsert(ctx, conv))

	got, _, err := s.Find(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Variables["k"])
}

func TestDeleteAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "storage.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Upsert(ctx, testConversation("c1")))
	require.NoError(t, s.Upsert(ctx, testConversation("c2")))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, ids)

	require.NoError(t, s.Delete(ctx, "c1"))
	ids, err = s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids)

	require.NoError(t, s.Delete(ctx, "nonexistent"))
}

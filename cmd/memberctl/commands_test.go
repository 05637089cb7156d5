package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/repository"
)

func testEnv(t *testing.T) (*env, *docstore.MemoryStore, *bytes.Buffer) {
	t.Helper()
	store := docstore.NewMemoryStore()
	var out bytes.Buffer
	e := &env{
		out: &out,
		openStore: func(context.Context) (docstore.Store, func(), error) {
			return store, func() {}, nil
		},
		migrate: func(context.Context) ([]string, error) {
			return []string{"001_documents.sql"}, nil
		},
	}
	insert := func(id string, fields map[string]any) {
		_, err := store.Insert(context.Background(), repository.MembersCollection, id, fields)
		require.NoError(t, err)
	}
	insert("a1", map[string]any{"name": "Budi", "role": "Anggota", "status": "active"})
	insert("k1", map[string]any{"name": "Ketua Satu", "role": "Ketua", "status": "active"})
	insert("p1", map[string]any{"name": "Dewi", "role": "Anggota", "status": "pending"})
	insert("bad", map[string]any{"name": "Broken", "status": "active"})
	return e, store, &out
}

func run(t *testing.T, e *env, args ...string) error {
	t.Helper()
	cmd := newRootCommand(e)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(t.Context())
}

func TestMembersCommands(t *testing.T) {
	t.Run("Should list members in rank order with filters", func(t *testing.T) {
		e, _, out := testEnv(t)
		require.NoError(t, run(t, e, "members", "list", "--status", "active"))
		text := out.String()
		assert.Less(t, bytes.Index(out.Bytes(), []byte("k1")), bytes.Index(out.Bytes(), []byte("a1")))
		assert.NotContains(t, text, "p1")
		assert.NotContains(t, text, "bad")
	})
	t.Run("Should list pending members", func(t *testing.T) {
		e, _, out := testEnv(t)
		require.NoError(t, run(t, e, "members", "pending"))
		assert.Contains(t, out.String(), "Dewi")
		assert.NotContains(t, out.String(), "Budi")
	})
	t.Run("Should show quarantined records", func(t *testing.T) {
		e, _, out := testEnv(t)
		require.NoError(t, run(t, e, "members", "quarantined"))
		assert.Contains(t, out.String(), "bad")
	})
	t.Run("Should repair a malformed record when both fields are given", func(t *testing.T) {
		e, store, _ := testEnv(t)
		assert.Error(t, run(t, e, "members", "set", "bad", "--status", "inactive"))
		require.NoError(t, run(t, e, "members", "set", "bad", "--role", "Anggota", "--status", "inactive"))

		rec, err := store.GetOne(context.Background(), repository.MembersCollection, "bad")
		require.NoError(t, err)
		member, err := repository.DecodeMember(rec)
		require.NoError(t, err)
		assert.Equal(t, "inactive", string(member.Status))
	})
	t.Run("Should accept role aliases in flags", func(t *testing.T) {
		e, store, out := testEnv(t)
		require.NoError(t, run(t, e, "members", "list", "--role", "chairman"))
		assert.Contains(t, out.String(), "Ketua Satu")
		assert.NotContains(t, out.String(), "Budi")

		require.NoError(t, run(t, e, "members", "set", "a1", "--role", "treasurer"))
		rec, err := store.GetOne(context.Background(), repository.MembersCollection, "a1")
		require.NoError(t, err)
		member, err := repository.DecodeMember(rec)
		require.NoError(t, err)
		assert.Equal(t, "Bendahara", string(member.Role))
		assert.Equal(t, "active", string(member.Status))
	})
	t.Run("Should reject unknown flag values", func(t *testing.T) {
		e, _, _ := testEnv(t)
		assert.Error(t, run(t, e, "members", "list", "--role", "Boss"))
		assert.Error(t, run(t, e, "members", "set", "a1", "--status", "archived"))
		assert.Error(t, run(t, e, "members", "set", "a1"))
	})
	t.Run("Should report applied migrations", func(t *testing.T) {
		e, _, out := testEnv(t)
		require.NoError(t, run(t, e, "migrate"))
		assert.Contains(t, out.String(), "applied 001_documents.sql")
	})
}

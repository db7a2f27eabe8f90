package redisstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	rediscon "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
)

func TestStore(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	redisContainer, err := rediscon.Run(ctx, "redis:7",
		testcontainers.WithConfigModifier(func(config *container.Config) {
			config.Env = []string{"ALLOW_EMPTY_PASSWORD=yes"}
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, redisContainer.Terminate(ctx))
	})

	url, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	st, err := Open(ctx, url, fmt.Sprintf("test-%d", time.Now().UnixNano()), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = st.Read(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, st.Delete(ctx, "missing"), storage.ErrNotFound)

	msgs := []proto.Message{
		{Role: proto.RoleUser, Content: "list files"},
		{Role: proto.RoleAssistant, Content: "two files"},
	}
	require.NoError(t, st.Write(ctx, "c1", msgs))

	got, err := st.Read(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, msgs, got)

	msgs = append(msgs, proto.Message{Role: proto.RoleUser, Content: "thanks"})
	require.NoError(t, st.Write(ctx, "c1", msgs))
	got, err = st.Read(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 3)

	require.NoError(t, st.Delete(ctx, "c1"))
	_, err = st.Read(ctx, "c1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Error(t, st.Write(ctx, "", msgs))

	t.Run("history over redis", func(t *testing.T) {
		db, err := storage.Open(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		h := storage.NewHistory(db, st)
		id := storage.NewConversationID()
		require.NoError(t, h.Save(ctx, storage.Conversation{ID: id, Title: "files"}, msgs))

		loaded, err := h.Load(ctx, id)
		require.NoError(t, err)
		require.Equal(t, msgs, loaded)

		require.NoError(t, h.Delete(ctx, id))
		_, ok := db.Get(id)
		require.False(t, ok)
	})
}

func TestOpenBadURL(t *testing.T) {
	_, err := Open(context.Background(), "not a url", DefaultPrefix, 0)
	require.Error(t, err)
}

func TestKey(t *testing.T) {
	require.Equal(t, "/relay/conversations/abc", New(nil, DefaultPrefix, 0).key("abc"))
}

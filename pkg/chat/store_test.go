package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livechat/pkg/testhelpers"
)

// storeFixture builds a store plus a factory for conversation ids the store accepts.
type storeFixture func(t *testing.T) (Store, func() string)

func pebbleFixture(t *testing.T) (Store, func() string) {
	n := 0
	return NewPebbleStore(testhelpers.OpenTestPebble(t)), func() string {
		n++
		return fmt.Sprintf("conv-%d", n)
	}
}

func postgresFixture(t *testing.T) (Store, func() string) {
	pool := testhelpers.SetupTestPool(t)
	return NewPostgresStore(pool), func() string { return testhelpers.CreateTestIdentity(t, pool) }
}

func runStoreTests(t *testing.T, fixture storeFixture) {
	t.Run("append then list keeps order", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		id := newConv()

		first, err := store.AppendMessage(ctx, id, SenderCustomer, "Hi")
		require.NoError(t, err)
		second, err := store.AppendMessage(ctx, id, SenderAgent, "Hello")
		require.NoError(t, err)
		require.Greater(t, second.ID, first.ID)
		require.False(t, second.CreatedAt.Before(first.CreatedAt))

		list, err := store.ListMessages(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, SenderCustomer, list[0].Sender)
		require.Equal(t, "Hi", list[0].Body)
		require.Equal(t, SenderAgent, list[1].Sender)
		require.False(t, list[0].Read)
	})

	t.Run("since cursor", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		id := newConv()

		first, err := store.AppendMessage(ctx, id, SenderCustomer, "one")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, SenderCustomer, "two")
		require.NoError(t, err)

		list, err := store.ListMessages(ctx, id, first.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.Equal(t, "two", list[0].Body)
	})

	t.Run("conversations are isolated", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		a, b := newConv(), newConv()

		_, err := store.AppendMessage(ctx, a, SenderCustomer, "for a")
		require.NoError(t, err)

		list, err := store.ListMessages(ctx, b, 0)
		require.NoError(t, err)
		require.Empty(t, list)

		exists, err := store.ConversationExists(ctx, b)
		require.NoError(t, err)
		require.False(t, exists)
		exists, err = store.ConversationExists(ctx, a)
		require.NoError(t, err)
		require.True(t, exists)
	})

	t.Run("mark read flips counterpart messages only", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		id := newConv()

		_, err := store.AppendMessage(ctx, id, SenderCustomer, "q1")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, SenderCustomer, "q2")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, SenderAgent, "a1")
		require.NoError(t, err)

		unread, err := store.UnreadCount(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Equal(t, 2, unread)
		unread, err = store.UnreadCount(ctx, id, SenderCustomer)
		require.NoError(t, err)
		require.Equal(t, 1, unread)

		changed, err := store.MarkRead(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Equal(t, 2, changed)

		changed, err = store.MarkRead(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Zero(t, changed)

		unread, err = store.UnreadCount(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Zero(t, unread)
		unread, err = store.UnreadCount(ctx, id, SenderCustomer)
		require.NoError(t, err)
		require.Equal(t, 1, unread)

		list, err := store.ListMessages(ctx, id, 0)
		require.NoError(t, err)
		require.True(t, list[0].Read)
		require.True(t, list[1].Read)
		require.False(t, list[2].Read)
	})

	t.Run("unread override", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		id := newConv()

		require.ErrorIs(t, store.SetUnreadOverride(ctx, id, 3), ErrConversationNotFound)

		_, err := store.AppendMessage(ctx, id, SenderCustomer, "hi")
		require.NoError(t, err)
		_, err = store.MarkRead(ctx, id, SenderAgent)
		require.NoError(t, err)

		require.NoError(t, store.SetUnreadOverride(ctx, id, 3))
		unread, err := store.UnreadCount(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Equal(t, 3, unread)

		// per-message flags are untouched
		list, err := store.ListMessages(ctx, id, 0)
		require.NoError(t, err)
		require.True(t, list[0].Read)

		_, err = store.AppendMessage(ctx, id, SenderCustomer, "again")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, id, SenderAgent, "reply")
		require.NoError(t, err)
		unread, err = store.UnreadCount(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Equal(t, 4, unread)

		// the customer side never sees the override
		unread, err = store.UnreadCount(ctx, id, SenderCustomer)
		require.NoError(t, err)
		require.Equal(t, 1, unread)

		_, err = store.MarkRead(ctx, id, SenderAgent)
		require.NoError(t, err)
		unread, err = store.UnreadCount(ctx, id, SenderAgent)
		require.NoError(t, err)
		require.Zero(t, unread)
	})

	t.Run("summaries", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		a, b := newConv(), newConv()
		newConv() // identity without messages has no summary

		_, err := store.AppendMessage(ctx, a, SenderCustomer, "from a")
		require.NoError(t, err)
		_, err = store.AppendMessage(ctx, b, SenderCustomer, "from b")
		require.NoError(t, err)
		last, err := store.AppendMessage(ctx, b, SenderAgent, "reply to b")
		require.NoError(t, err)
		require.NoError(t, store.SetUnreadOverride(ctx, a, 7))

		sums, err := store.Summaries(ctx)
		require.NoError(t, err)
		require.Len(t, sums, 2)

		byID := map[string]Summary{}
		for _, s := range sums {
			byID[s.ConversationID] = s
		}
		require.Equal(t, 7, byID[a].UnreadCount)
		require.True(t, byID[a].Overridden)
		require.Equal(t, 1, byID[a].TotalCount)
		require.Equal(t, 1, byID[b].UnreadCount)
		require.Equal(t, 2, byID[b].TotalCount)
		require.Equal(t, last.ID, byID[b].LastMessage.ID)
		require.Equal(t, "reply to b", byID[b].LastMessage.Body)
	})

	t.Run("concurrent appends keep ids and times ordered", func(t *testing.T) {
		store, newConv := fixture(t)
		ctx := context.Background()
		id := newConv()

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				sender := SenderCustomer
				if i%2 == 0 {
					sender = SenderAgent
				}
				_, err := store.AppendMessage(ctx, id, sender, fmt.Sprintf("m%d", i))
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		list, err := store.ListMessages(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, list, 20)
		for i := 1; i < len(list); i++ {
			require.Greater(t, list[i].ID, list[i-1].ID)
			require.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
		}
	})
}

func TestPebbleStore(t *testing.T) {
	runStoreTests(t, pebbleFixture)
}

func TestPostgresStore(t *testing.T) {
	runStoreTests(t, postgresFixture)
}

func TestPebbleStore_SequenceSurvivesReopen(t *testing.T) {
	kv := testhelpers.OpenTestPebble(t)
	ctx := context.Background()

	first, err := NewPebbleStore(kv).AppendMessage(ctx, "c", SenderCustomer, "one")
	require.NoError(t, err)

	second, err := NewPebbleStore(kv).AppendMessage(ctx, "c", SenderCustomer, "two")
	require.NoError(t, err)
	require.Equal(t, first.ID+1, second.ID)
}

func TestPebbleStore_CreatedAtNeverGoesBackwards(t *testing.T) {
	store := NewPebbleStore(testhelpers.OpenTestPebble(t))
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	first, err := store.AppendMessage(ctx, "c", SenderCustomer, "one")
	require.NoError(t, err)

	store.now = func() time.Time { return base.Add(-time.Minute) }
	second, err := store.AppendMessage(ctx, "c", SenderAgent, "two")
	require.NoError(t, err)

	require.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestPostgresStore_RejectsMalformedConversationID(t *testing.T) {
	store := NewPostgresStore(nil)

	_, err := store.ListMessages(context.Background(), "not-a-uuid", 0)
	require.ErrorIs(t, err, ErrConversationNotFound)

	exists, err := store.ConversationExists(context.Background(), "not-a-uuid")
	require.NoError(t, err)
	require.False(t, exists)
}

// Package storetest provides a conformance suite every store implementation runs.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/dukex/actflow/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises the store contract against the store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(t.Context(), "acts/missing/act.json")
		require.Error(t, err)
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("put then get", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		etag, err := s.Put(ctx, "acts/a1/act.json", []byte(`{"id":"a1"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, etag)

		obj, err := s.Get(ctx, "acts/a1/act.json")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"a1"}`, string(obj.Value))
		assert.Equal(t, etag, obj.ETag)
	})

	t.Run("if not exists", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		_, err := s.Put(ctx, "generations/g1.json", []byte(`1`), store.IfNotExists())
		require.NoError(t, err)

		_, err = s.Put(ctx, "generations/g1.json", []byte(`2`), store.IfNotExists())
		require.Error(t, err)
		assert.True(t, store.IsConflict(err))

		obj, err := s.Get(ctx, "generations/g1.json")
		require.NoError(t, err)
		assert.Equal(t, "1", string(obj.Value))
	})

	t.Run("if match", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		first, err := s.Put(ctx, "generations/g2.json", []byte(`"queued"`))
		require.NoError(t, err)

		second, err := s.Put(ctx, "generations/g2.json", []byte(`"running"`), store.IfMatch(first))
		require.NoError(t, err)

		_, err = s.Put(ctx, "generations/g2.json", []byte(`"failed"`), store.IfMatch(first))
		require.Error(t, err)
		assert.True(t, store.IsConflict(err))

		obj, err := s.Get(ctx, "generations/g2.json")
		require.NoError(t, err)
		assert.Equal(t, `"running"`, string(obj.Value))
		assert.Equal(t, second, obj.ETag)
	})

	t.Run("if match on missing key", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Put(t.Context(), "generations/none.json", []byte(`1`), store.IfMatch("abc"))
		require.Error(t, err)
		assert.True(t, store.IsConflict(err))
	})

	t.Run("list by prefix", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		for _, key := range []string{
			"acts/a1/tasks/t2.json",
			"acts/a1/tasks/t1.json",
			"acts/a1/act.json",
			"acts/a2/tasks/t3.json",
		} {
			_, err := s.Put(ctx, key, []byte(`{}`))
			require.NoError(t, err)
		}

		keys, err := s.ListByPrefix(ctx, "acts/a1/tasks/")
		require.NoError(t, err)
		assert.Equal(t, []string{"acts/a1/tasks/t1.json", "acts/a1/tasks/t2.json"}, keys)

		keys, err = s.ListByPrefix(ctx, "acts/none/")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		_, err := s.Put(ctx, "acts/a1/cancel", []byte(`{}`))
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, "acts/a1/cancel"))
		require.NoError(t, s.Delete(ctx, "acts/a1/cancel"))

		_, err = s.Get(ctx, "acts/a1/cancel")
		assert.True(t, store.IsNotFound(err))
	})

	t.Run("rejects invalid keys", func(t *testing.T) {
		s := newStore(t)

		for _, key := range []string{"", "/abs", "a/../b", "trailing/"} {
			_, err := s.Put(t.Context(), key, []byte(`{}`))
			assert.ErrorIs(t, err, store.ErrInvalidKey, key)
		}
	})

	t.Run("concurrent conditional writers", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		base, err := s.Put(ctx, "generations/race.json", []byte(`"running"`))
		require.NoError(t, err)

		const writers = 8

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)

		for i := range writers {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()

				_, err := s.Put(context.Background(), "generations/race.json", []byte(fmt.Sprintf(`"w%d"`, i)), store.IfMatch(base))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(i)
		}

		wg.Wait()
		assert.Equal(t, 1, wins)
	})
}

package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisManager(t *testing.T, ttl time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewManager(NewRedisStore(client, ttl)), mr
}

func TestStartDiscardsPriorSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	first, err := m.Start(ctx, 1, KindMerchReport, "shop")
	require.NoError(t, err)
	require.NoError(t, m.Update(ctx, 1, func(cur *Session) (*Session, error) {
		cur.Fields["shop"] = "Сільпо"
		cur.Items = append(cur.Items, Item{"product_name": "Сир"})
		return cur, nil
	}))

	second, err := m.Start(ctx, 1, KindPallet, "quantity")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	got, err := m.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindPallet, got.Kind)
	assert.Empty(t, got.Fields)
	assert.Empty(t, got.Items)
}

func TestUpdateSemantics(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	// нет сессии — fn получает nil, nil-результат ничего не пишет
	require.NoError(t, m.Update(ctx, 7, func(cur *Session) (*Session, error) {
		assert.Nil(t, cur)
		return nil, nil
	}))

	_, err := m.Start(ctx, 7, KindOrder, "warehouse")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = m.Update(ctx, 7, func(cur *Session) (*Session, error) {
		cur.Step = "product"
		return cur, boom
	})
	require.ErrorIs(t, err, boom)
	got, _ := m.Get(ctx, 7)
	assert.Equal(t, "warehouse", got.Step)

	require.NoError(t, m.Update(ctx, 7, func(*Session) (*Session, error) { return nil, nil }))
	got, err = m.Get(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateRejectsForeignSession(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	err := m.Update(ctx, 1, func(*Session) (*Session, error) {
		return m.New(2, KindOrder, "warehouse"), nil
	})
	require.Error(t, err)
}

func TestRedisIdleExpiry(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, 10*time.Minute)

	_, err := m.Start(ctx, 3, KindDefective, "product_name")
	require.NoError(t, err)

	mr.FastForward(9 * time.Minute)
	// любое изменение продлевает TTL
	require.NoError(t, m.Update(ctx, 3, func(cur *Session) (*Session, error) { return cur, nil }))
	mr.FastForward(9 * time.Minute)
	got, err := m.Get(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, got)

	mr.FastForward(11 * time.Minute)
	got, err = m.Get(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisCorruptPayloadIsDropped(t *testing.T) {
	ctx := context.Background()
	m, mr := newRedisManager(t, time.Hour)

	require.NoError(t, mr.Set("dialog:session:5", "{not json"))
	got, err := m.Get(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("dialog:session:5"))
}

func TestSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	_, err := m.Start(ctx, 10, KindMerchReport, "shop")
	require.NoError(t, err)
	_, err = m.Start(ctx, 20, KindMerchReport, "shop")
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, 10, func(cur *Session) (*Session, error) {
		cur.Fields["shop"] = "АТБ"
		cur.Items = append(cur.Items, Item{"product_name": "Масло"})
		return cur, nil
	}))
	require.NoError(t, m.Clear(ctx, 10))

	other, err := m.Get(ctx, 20)
	require.NoError(t, err)
	require.NotNil(t, other)
	assert.Empty(t, other.Fields)
	assert.Empty(t, other.Items)
}

func TestConcurrentUpdatesAreSerializedPerUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newRedisManager(t, time.Hour)

	for _, uid := range []int64{1, 2} {
		_, err := m.Start(ctx, uid, KindPallet, "quantity")
		require.NoError(t, err)
	}

	const n = 25
	var wg sync.WaitGroup
	for _, uid := range []int64{1, 2} {
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(uid int64) {
				defer wg.Done()
				assert.NoError(t, m.Update(ctx, uid, func(cur *Session) (*Session, error) {
					cur.Items = append(cur.Items, Item{"quantity": "1"})
					return cur, nil
				}))
			}(uid)
		}
	}
	wg.Wait()

	for _, uid := range []int64{1, 2} {
		got, err := m.Get(ctx, uid)
		require.NoError(t, err)
		assert.Len(t, got.Items, n, "user %d lost updates", uid)
	}
	assert.Zero(t, m.locks.size())
}

func TestClone(t *testing.T) {
	s := &Session{
		Fields: map[string]string{"shop": "A"},
		Draft:  Item{"price": "1"},
		Items:  []Item{{"qty": "2"}},
		Offer:  map[string]string{"X1": "Сир"},
	}
	c := s.Clone()
	c.Fields["shop"] = "B"
	c.Draft["price"] = "9"
	c.Items[0]["qty"] = "9"
	c.Items = append(c.Items, Item{})
	c.Offer["X2"] = "Молоко"

	assert.Equal(t, "A", s.Fields["shop"])
	assert.Equal(t, "1", s.Draft["price"])
	assert.Equal(t, "2", s.Items[0]["qty"])
	assert.Len(t, s.Items, 1)
	assert.Len(t, s.Offer, 1)
}

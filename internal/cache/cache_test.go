package cache

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/model"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testID(t *testing.T, family model.ChainFamily, b byte) model.PoolIdentifier {
	t.Helper()
	size := model.EVMAddressLen
	if family == model.ChainAccountModel {
		size = model.AccountAddressLen
	}
	id, err := model.NewPoolIdentifier(family, bytes.Repeat([]byte{b}, size))
	require.NoError(t, err)
	return id
}

func testSnapshot(t *testing.T, id model.PoolIdentifier, reserveA int64) *model.PoolSnapshot {
	t.Helper()
	snap, err := model.NewPoolSnapshot(id,
		model.TokenInfo{Address: "0xaaaa", Decimals: 18},
		model.TokenInfo{Address: "0xbbbb", Decimals: 6},
		big.NewInt(reserveA), big.NewInt(4_000_000),
		100, time.Unix(1_700_000_000, 0).UTC())
	require.NoError(t, err)
	return snap
}

func TestKeyForIsStableAndChainScoped(t *testing.T) {
	evm := testID(t, model.ChainEVM, 0x11)
	assert.Equal(t, KeyFor(evm), KeyFor(evm), "same identifier must fingerprint identically")

	other := testID(t, model.ChainEVM, 0x12)
	assert.NotEqual(t, KeyFor(evm), KeyFor(other), "different addresses must fingerprint differently")

	// Same address bytes on two chains must never collide. Built raw
	// because a 32-byte EVM address would not validate.
	raw := bytes.Repeat([]byte{0x33}, model.AccountAddressLen)
	onEVM := model.PoolIdentifier{Chain: model.ChainEVM, Address: string(raw)}
	onAccount := model.PoolIdentifier{Chain: model.ChainAccountModel, Address: string(raw)}
	assert.NotEqual(t, KeyFor(onEVM), KeyFor(onAccount))
}

func TestGetMissThenInsertHit(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x01)

	snap, err := c.Get(id)
	require.NoError(t, err)
	require.Nil(t, snap, "empty cache must miss")

	want := testSnapshot(t, id, 1_000)
	c.Insert(want, time.Minute)

	got, err := c.Get(id)
	require.NoError(t, err)
	require.Same(t, want, got, "hit must return the stored snapshot")
}

func TestTTLBoundary(t *testing.T) {
	clk := newFakeClock()
	c := New(WithClock(clk.Now))
	id := testID(t, model.ChainEVM, 0x02)
	c.Insert(testSnapshot(t, id, 1_000), 30*time.Second)

	clk.advance(29 * time.Second)
	got, err := c.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got, "lookup inside the TTL must hit")

	clk.advance(time.Second)
	got, err = c.Get(id)
	require.NoError(t, err)
	require.Nil(t, got, "lookup at exactly the TTL must miss")
	assert.Equal(t, 0, c.Len(), "expired entry must be reclaimed on access")
}

func TestInsertReplacesWholesale(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x03)
	c.Insert(testSnapshot(t, id, 1_000), time.Minute)

	second := testSnapshot(t, id, 2_000)
	c.Insert(second, time.Minute)

	got, err := c.Get(id)
	require.NoError(t, err)
	require.Same(t, second, got)
	assert.Equal(t, 1, c.Len())
}

func TestInvalidate(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x04)
	c.Insert(testSnapshot(t, id, 1_000), time.Minute)

	c.Invalidate(id)

	got, err := c.Get(id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetOrFetchSharesOneFetch(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x05)
	want := testSnapshot(t, id, 1_000)

	var (
		mu      sync.Mutex
		fetches int
	)
	release := make(chan struct{})
	fetch := func(context.Context) (*model.PoolSnapshot, error) {
		mu.Lock()
		fetches++
		mu.Unlock()
		<-release
		return want, nil
	}

	const callers = 8
	var wg sync.WaitGroup
	got := make([]*model.PoolSnapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i], errs[i] = c.GetOrFetch(context.Background(), id, time.Minute, fetch)
		}(i)
	}

	// Let every caller reach the slot before the fetch completes.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, fetches, "concurrent callers must share one fetch")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Same(t, want, got[i], "caller %d must receive the shared snapshot", i)
	}
}

func TestGetOrFetchDoesNotCacheFailures(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x06)
	want := testSnapshot(t, id, 1_000)

	fetches := 0
	fetch := func(context.Context) (*model.PoolSnapshot, error) {
		fetches++
		if fetches == 1 {
			return nil, fmt.Errorf("%w: connection refused", model.ErrChainUnreachable)
		}
		return want, nil
	}

	_, err := c.GetOrFetch(context.Background(), id, time.Minute, fetch)
	require.ErrorIs(t, err, model.ErrChainUnreachable)
	assert.Equal(t, 0, c.Len(), "failures must not be cached")

	got, err := c.GetOrFetch(context.Background(), id, time.Minute, fetch)
	require.NoError(t, err)
	require.Same(t, want, got)
	assert.Equal(t, 2, fetches, "second call must fetch again")
}

func TestGetOrFetchHitSkipsFetch(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x07)
	want := testSnapshot(t, id, 1_000)
	c.Insert(want, time.Minute)

	got, err := c.GetOrFetch(context.Background(), id, time.Minute, func(context.Context) (*model.PoolSnapshot, error) {
		t.Error("fetch must not run on a fresh hit")
		return nil, nil
	})
	require.NoError(t, err)
	require.Same(t, want, got)
}

func TestGetOrFetchWaiterHonorsOwnContext(t *testing.T) {
	c := New()
	id := testID(t, model.ChainEVM, 0x08)

	release := make(chan struct{})
	defer close(release)
	ownerStarted := make(chan struct{})
	go func() {
		_, _ = c.GetOrFetch(context.Background(), id, time.Minute, func(context.Context) (*model.PoolSnapshot, error) {
			close(ownerStarted)
			<-release
			return testSnapshot(t, id, 1_000), nil
		})
	}()
	<-ownerStarted

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.GetOrFetch(ctx, id, time.Minute, func(context.Context) (*model.PoolSnapshot, error) {
		t.Error("waiter must attach to the in-flight slot, not fetch")
		return nil, nil
	})
	require.ErrorIs(t, err, model.ErrTimeout, "waiter must leave with a timeout when its context ends")
}

func TestCorruptedEntryNeverServed(t *testing.T) {
	c := New()
	idA := testID(t, model.ChainEVM, 0x0a)
	idB := testID(t, model.ChainEVM, 0x0b)
	c.Insert(testSnapshot(t, idA, 1_000), time.Minute)

	// Plant a snapshot under the wrong key.
	c.mu.Lock()
	c.entries[KeyFor(idA)].snapshot = testSnapshot(t, idB, 2_000)
	c.mu.Unlock()

	snap, err := c.Get(idA)
	require.ErrorIs(t, err, model.ErrCacheCorruption)
	require.Nil(t, snap, "corrupted data must never be served")

	// The entry was dropped; the next lookup is a plain miss.
	snap, err = c.Get(idA)
	require.NoError(t, err)
	require.Nil(t, snap)
}

func TestGetOrFetchSurfacesCorruption(t *testing.T) {
	c := New()
	idA := testID(t, model.ChainEVM, 0x0c)
	idB := testID(t, model.ChainEVM, 0x0d)
	c.Insert(testSnapshot(t, idA, 1_000), time.Minute)

	c.mu.Lock()
	c.entries[KeyFor(idA)].snapshot = testSnapshot(t, idB, 2_000)
	c.mu.Unlock()

	_, err := c.GetOrFetch(context.Background(), idA, time.Minute, func(context.Context) (*model.PoolSnapshot, error) {
		t.Error("the corrupted lookup itself must not fetch")
		return nil, nil
	})
	require.ErrorIs(t, err, model.ErrCacheCorruption)

	// The entry is gone, so a retry behaves as a normal miss.
	want := testSnapshot(t, idA, 3_000)
	got, err := c.GetOrFetch(context.Background(), idA, time.Minute, func(context.Context) (*model.PoolSnapshot, error) {
		return want, nil
	})
	require.NoError(t, err)
	require.Same(t, want, got)
}

func TestRemoveExpired(t *testing.T) {
	clk := newFakeClock()
	c := New(WithClock(clk.Now))

	for i := byte(0); i < 3; i++ {
		c.Insert(testSnapshot(t, testID(t, model.ChainEVM, i), 1_000), 10*time.Second)
	}
	c.Insert(testSnapshot(t, testID(t, model.ChainAccountModel, 0x20), 1_000), time.Hour)
	require.Equal(t, 4, c.Len())

	clk.advance(30 * time.Second)
	assert.Equal(t, 3, c.removeExpired())
	assert.Equal(t, 1, c.Len(), "the long-TTL entry must survive the sweep")
}

func TestGetOrFetchDefaultTTL(t *testing.T) {
	clk := newFakeClock()
	c := New(WithClock(clk.Now), WithDefaultTTL(5*time.Second))
	id := testID(t, model.ChainEVM, 0x0e)
	want := testSnapshot(t, id, 1_000)

	_, err := c.GetOrFetch(context.Background(), id, 0, func(context.Context) (*model.PoolSnapshot, error) {
		return want, nil
	})
	require.NoError(t, err)

	clk.advance(4 * time.Second)
	got, err := c.Get(id)
	require.NoError(t, err)
	require.NotNil(t, got)

	clk.advance(time.Second)
	got, err = c.Get(id)
	require.NoError(t, err)
	require.Nil(t, got, "default TTL must bound the entry")
}

func TestSweepLoopStopsOnContext(t *testing.T) {
	c := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Sweep(ctx, time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sweep did not stop after context cancellation")
	}
}

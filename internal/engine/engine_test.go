package engine_test

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchcore/internal/common"
	"matchcore/internal/engine"
)

func limit(symbol string, side common.Side, price, qty int64) common.Order {
	return common.NewOrder(symbol, side, common.Limit, decimal.NewFromInt(price), decimal.NewFromInt(qty))
}

func market(symbol string, side common.Side, qty int64) common.Order {
	return common.NewOrder(symbol, side, common.Market, decimal.Zero, decimal.NewFromInt(qty))
}

func TestSubmitCreatesSymbolLazily(t *testing.T) {
	e := engine.New()
	assert.Empty(t, e.Symbols())

	_, err := e.Submit(limit("BTCUSD", common.Buy, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSD"}, e.Symbols())
}

func TestSubmitRejectsUnsupportedOrderType(t *testing.T) {
	e := engine.New()
	order := common.NewOrder("BTCUSD", common.Buy, common.StopLimit, decimal.NewFromInt(100), decimal.NewFromInt(1))

	_, err := e.Submit(order)
	require.ErrorIs(t, err, engine.ErrUnsupportedOrderType)
}

func TestSubmitRestsUnmatchedLimitResidual(t *testing.T) {
	// S1/S4 at the engine level: resting order, then a crossing counterparty.
	e := engine.New()
	resting, err := e.Submit(limit("BTCUSD", common.Buy, 50000, 1))
	require.NoError(t, err)
	assert.Equal(t, common.Open, resting.Status)

	snap, ok := e.Snapshot("BTCUSD")
	require.True(t, ok)
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Price.Equal(decimal.NewFromInt(50000)))

	filled, err := e.Submit(limit("BTCUSD", common.Sell, 50000, 1))
	require.NoError(t, err)
	assert.Equal(t, common.Filled, filled.Status)

	snap, ok = e.Snapshot("BTCUSD")
	require.True(t, ok)
	assert.Empty(t, snap.Bids)
}

func TestSubmitPartialFillClassification(t *testing.T) {
	e := engine.New()
	_, err := e.Submit(limit("BTCUSD", common.Sell, 50000, 1))
	require.NoError(t, err)

	updated, err := e.Submit(limit("BTCUSD", common.Buy, 50000, 3))
	require.NoError(t, err)
	assert.Equal(t, common.PartiallyFilled, updated.Status)
	assert.True(t, updated.Remaining().Equal(decimal.NewFromInt(2)))

	snap, ok := e.Snapshot("BTCUSD")
	require.True(t, ok)
	require.Len(t, snap.Bids, 1)
	assert.True(t, snap.Bids[0].Quantity.Equal(decimal.NewFromInt(2)))
}

func TestSubmitUnfilledMarketRemainderIsCancelledNotRested(t *testing.T) {
	e := engine.New()
	_, err := e.Submit(limit("BTCUSD", common.Sell, 100, 1))
	require.NoError(t, err)

	updated, err := e.Submit(market("BTCUSD", common.Buy, 5))
	require.NoError(t, err)
	assert.Equal(t, common.Cancelled, updated.Status)
	assert.True(t, updated.Remaining().Equal(decimal.NewFromInt(4)))

	snap, ok := e.Snapshot("BTCUSD")
	require.True(t, ok)
	assert.Empty(t, snap.Asks)
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	e := engine.New()
	resting, err := e.Submit(limit("BTCUSD", common.Buy, 100, 1))
	require.NoError(t, err)

	cancelled, err := e.Cancel(resting.ID, "BTCUSD")
	require.NoError(t, err)
	assert.Equal(t, common.Cancelled, cancelled.Status)

	snap, ok := e.Snapshot("BTCUSD")
	require.True(t, ok)
	assert.Empty(t, snap.Bids)
}

func TestCancelUnknownSymbolReturnsErrNotFound(t *testing.T) {
	e := engine.New()
	_, err := e.Cancel(common.NewOrder("BTCUSD", common.Buy, common.Limit, decimal.NewFromInt(1), decimal.NewFromInt(1)).ID, "BTCUSD")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestCancelUnknownIDReturnsErrNotFound(t *testing.T) {
	e := engine.New()
	_, err := e.Submit(limit("BTCUSD", common.Buy, 100, 1))
	require.NoError(t, err)

	_, err = e.Cancel(common.NewOrder("BTCUSD", common.Buy, common.Limit, decimal.NewFromInt(1), decimal.NewFromInt(1)).ID, "BTCUSD")
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestSnapshotUnknownSymbolReturnsFalse(t *testing.T) {
	e := engine.New()
	_, ok := e.Snapshot("NOSUCH")
	assert.False(t, ok)
}

func TestTradesAreDeliveredToSubscribersInMatchOrder(t *testing.T) {
	e := engine.New()
	ch, unsubscribe := e.Trades()
	defer unsubscribe()

	_, err := e.Submit(limit("BTCUSD", common.Sell, 49900, 2))
	require.NoError(t, err)
	_, err = e.Submit(limit("BTCUSD", common.Sell, 50000, 1))
	require.NoError(t, err)

	_, err = e.Submit(limit("BTCUSD", common.Buy, 50000, 3))
	require.NoError(t, err)

	first := <-ch
	second := <-ch
	assert.True(t, first.Price.Equal(decimal.NewFromInt(49900)))
	assert.True(t, second.Price.Equal(decimal.NewFromInt(50000)))
}

func TestConcurrentSubmitsOnDistinctSymbolsDoNotBlockEachOther(t *testing.T) {
	e := engine.New()
	symbols := []string{"BTCUSD", "ETHUSD", "SOLUSD", "XRPUSD"}

	var wg sync.WaitGroup
	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			for i := int64(0); i < 50; i++ {
				_, err := e.Submit(limit(symbol, common.Buy, 100+i, 1))
				assert.NoError(t, err)
			}
		}(symbol)
	}
	wg.Wait()

	for _, symbol := range symbols {
		snap, ok := e.Snapshot(symbol)
		require.True(t, ok)
		assert.Len(t, snap.Bids, 20) // truncated to DefaultSnapshotDepth
	}
}

func TestConcurrentSubmitsOnSameSymbolStayConsistent(t *testing.T) {
	// Many concurrent crossing submissions on one symbol must never leave the
	// book in a crossed state, and every trade must be accounted exactly once.
	e := engine.New()
	const n = 100
	_, err := e.Submit(limit("BTCUSD", common.Sell, 100, n))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Submit(limit("BTCUSD", common.Buy, 100, 1))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, ok := e.Snapshot("BTCUSD")
	require.True(t, ok)
	assert.Empty(t, snap.Asks)
	assert.Empty(t, snap.Bids)
}

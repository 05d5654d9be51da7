package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

func TestCalendarStore_InsertAndRange(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewCalendarStore(pool)
	ctx := context.Background()

	days := []*domain.CalendarDay{
		{DateID: 20171124, Date: time.Date(2017, 11, 24, 0, 0, 0, 0, time.UTC), DayOfWeek: time.Friday, DayName: "Friday", Month: 11, Quarter: 4, SeasonalityFactor: 3.5},
		{DateID: 20171125, Date: time.Date(2017, 11, 25, 0, 0, 0, 0, time.UTC), DayOfWeek: time.Saturday, DayName: "Saturday", Month: 11, Quarter: 4, IsWeekend: true, SeasonalityFactor: 2.8},
	}
	require.NoError(t, store.InsertBulk(ctx, days))

	got, err := store.GetRange(ctx, 20171101, 20171130)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 20171124, got[0].DateID)
	assert.True(t, got[0].Date.Equal(days[0].Date))
	assert.Equal(t, time.Saturday, got[1].DayOfWeek)
	assert.True(t, got[1].IsWeekend)
	assert.InDelta(t, 2.8, got[1].SeasonalityFactor, 1e-12)

	err = store.InsertBulk(ctx, days[:1])
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestOrderItemStore_CopyAndQuery(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewOrderItemStore(pool)
	ctx := context.Background()

	items := []*domain.OrderItem{
		{OrderID: "b", ItemSeq: 1, DateID: 20170101, ProductID: "p1", Price: 10, FreightValue: 2},
		{OrderID: "a", ItemSeq: 2, DateID: 20170101, ProductID: "p2", Price: 20},
		{OrderID: "a", ItemSeq: 1, DateID: 20170101, ProductID: "p3", Price: 30},
		{OrderID: "c", ItemSeq: 1, DateID: 20170201, ProductID: "p4", Price: 40},
	}
	require.NoError(t, store.InsertBulk(ctx, items))

	got, err := store.GetByDateRange(ctx, 20170101, 20170131)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].OrderID)
	assert.Equal(t, 1, got[0].ItemSeq)
	assert.Equal(t, 2, got[1].ItemSeq)
	assert.Equal(t, "b", got[2].OrderID)
	assert.InDelta(t, 2.0, got[2].FreightValue, 1e-12)

	// whole batch rolls back on a duplicate
	err = store.InsertBulk(ctx, []*domain.OrderItem{
		{OrderID: "d", ItemSeq: 1, DateID: 20170102, Price: 1},
		{OrderID: "a", ItemSeq: 1, DateID: 20170101, Price: 1},
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	got, err = store.GetByDateRange(ctx, 20170102, 20170102)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRunStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRunStore(pool)
	ctx := context.Background()

	run := &domain.Run{
		RunID:          "run-1",
		Tier:           domain.TierHard,
		Seed:           404,
		Policy:         "funnel_loss",
		InventoryMode:  "direct",
		CostBasis:      "click",
		StartDateID:    20170101,
		EndDateID:      20171231,
		Orders:         1000,
		PaidOrders:     400,
		BouncedOrders:  250,
		TotalSpend:     12345.67,
		AttributedCost: 5432.1,
		WastedSpend:    6913.57,
		ConfigHash:     "abc",
		CreatedAt:      2000,
	}
	require.NoError(t, store.Insert(ctx, run))

	got, err := store.GetByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, run, got)

	assert.ErrorIs(t, store.Insert(ctx, run), storage.ErrDuplicateKey)

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, store.Insert(ctx, &domain.Run{RunID: "run-0", CreatedAt: 1000}))
	runs, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-0", runs[0].RunID)
}

func TestAttributionStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, pool, "r1")
	store := NewAttributionStore(pool)
	ctx := context.Background()

	results := []*domain.AttributionResult{
		{RunID: "r1", OrderID: "o2", DateID: 20170102, Channel: "Google_Search", AcquisitionCost: 1.25, Reason: domain.ReasonPaid, ConsumedChannel: "Google_Search", ClickDateID: 20170101},
		{RunID: "r1", OrderID: "o1", DateID: 20170102, Channel: domain.ChannelOrganic, Reason: domain.ReasonBounced, ConsumedChannel: "Facebook_Ads", ClickDateID: 20170102},
	}
	require.NoError(t, store.InsertBulk(ctx, results))

	got, err := store.GetByRunID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "o1", got[0].OrderID)
	assert.Equal(t, domain.ReasonBounced, got[0].Reason)
	assert.Equal(t, "Facebook_Ads", got[0].ConsumedChannel)

	one, err := store.GetByOrder(ctx, "r1", "o2")
	require.NoError(t, err)
	assert.Equal(t, results[0], one)

	_, err = store.GetByOrder(ctx, "r1", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, store.InsertBulk(ctx, results[:1]), storage.ErrDuplicateKey)
}

func TestItemCostStore_RoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	seedRun(t, pool, "r1")
	store := NewItemCostStore(pool)
	ctx := context.Background()

	costs := []*domain.ItemCost{
		{RunID: "r1", OrderID: "o1", ItemSeq: 2, DateID: 20170101, Channel: "A", Price: 40, GMVShare: 0.4, AcquisitionCost: 0.8},
		{RunID: "r1", OrderID: "o1", ItemSeq: 1, DateID: 20170101, Channel: "A", Price: 60, GMVShare: 0.6, AcquisitionCost: 1.2},
	}
	require.NoError(t, store.InsertBulk(ctx, costs))

	got, err := store.GetByRunID(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].ItemSeq)
	assert.InDelta(t, 0.6, got[0].GMVShare, 1e-12)

	assert.ErrorIs(t, store.InsertBulk(ctx, costs), storage.ErrDuplicateKey)
}

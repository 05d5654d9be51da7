package memory

import (
	"context"
	"errors"
	"testing"

	"causal-commerce-lab/internal/domain"
	"causal-commerce-lab/internal/storage"
)

func TestAttributionStore_InsertBulkAndGet(t *testing.T) {
	store := NewAttributionStore()
	ctx := context.Background()

	results := []*domain.AttributionResult{
		{RunID: "r1", OrderID: "o2", DateID: 20170102, Channel: "Google_Search", AcquisitionCost: 1.5, Reason: domain.ReasonPaid},
		{RunID: "r1", OrderID: "o1", DateID: 20170102, Channel: domain.ChannelOrganic, Reason: domain.ReasonOrganicBase},
		{RunID: "r1", OrderID: "o0", DateID: 20170101, Channel: domain.ChannelOrganic, Reason: domain.ReasonNoInventory},
		{RunID: "r2", OrderID: "o1", DateID: 20170101, Channel: "Email_Marketing", AcquisitionCost: 0.2, Reason: domain.ReasonPaid},
	}
	if err := store.InsertBulk(ctx, results); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByRunID(ctx, "r1")
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(got) != 3 || got[0].OrderID != "o0" || got[1].OrderID != "o1" || got[2].OrderID != "o2" {
		t.Fatalf("unexpected order: %+v", got)
	}

	one, err := store.GetByOrder(ctx, "r2", "o1")
	if err != nil {
		t.Fatalf("GetByOrder failed: %v", err)
	}
	if one.Channel != "Email_Marketing" || one.AcquisitionCost != 0.2 {
		t.Errorf("unexpected result: %+v", one)
	}

	if _, err := store.GetByOrder(ctx, "r2", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestAttributionStore_InsertBulkAtomic(t *testing.T) {
	store := NewAttributionStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.AttributionResult{{RunID: "r1", OrderID: "o1"}}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	// existing key fails the whole batch
	err := store.InsertBulk(ctx, []*domain.AttributionResult{
		{RunID: "r1", OrderID: "o2"},
		{RunID: "r1", OrderID: "o1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}
	if _, err := store.GetByOrder(ctx, "r1", "o2"); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed batch must not be partially inserted")
	}

	// intra-batch duplicate
	err = store.InsertBulk(ctx, []*domain.AttributionResult{
		{RunID: "r1", OrderID: "o3"},
		{RunID: "r1", OrderID: "o3"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if err := store.InsertBulk(ctx, []*domain.AttributionResult{{OrderID: "o4"}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

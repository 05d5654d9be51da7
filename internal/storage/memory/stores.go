package memory

import "causal-commerce-lab/internal/storage"

// NewStores creates a fresh in-memory store for every table.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Calendar:    NewCalendarStore(),
		OrderItems:  NewOrderItemStore(),
		Runs:        NewRunStore(),
		Attribution: NewAttributionStore(),
		ItemCosts:   NewItemCostStore(),
		Exposure:    NewExposureStore(),
		DailyPnL:    NewDailyPnLStore(),
	}
}

package domain

// OrderItem is one line of an order (fact_orders at item grain).
type OrderItem struct {
	OrderID      string
	ItemSeq      int // 1-based position within the order
	DateID       int
	ProductID    string
	Price        float64
	FreightValue float64
}

// Order is the order-grain view used for attribution.
type Order struct {
	OrderID      string
	DateID       int
	Price        float64 // sum of item prices (GMV)
	FreightValue float64
	ItemCount    int
}

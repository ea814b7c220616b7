package domain

import "time"

// Category groups products on the till screen.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is a sellable item keyed by its barcode. Price is the current
// selling price in minor units.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	CategoryID *int64    `json:"category_id,omitempty"`
	Price      int64     `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProductStock is a product together with its derived on-hand quantity.
type ProductStock struct {
	Product
	OnHand int `json:"on_hand"`
}

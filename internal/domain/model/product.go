package model

// Product describes a store listing returned by the purchase platform.
type Product struct {
	SKU         string `json:"sku"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Price       string `json:"price"`    // localized display price, platform-formatted
	Currency    string `json:"currency"` // ISO code when the platform reports one
}

package domain

// Cart size and compaction bounds.
const (
	// MaxDistinctItems is the hard cap on distinct line items in a cart.
	MaxDistinctItems = 100
	// MaxStoredImageURLLen bounds image URLs kept in the persisted form;
	// longer references (typically inlined data URLs) are dropped to conserve
	// storage quota.
	MaxStoredImageURLLen = 200
	// MinimalNameLen is the name length the reduced-fidelity form truncates to.
	MinimalNameLen = 50
)

// LineItem is one entry in the cart: a product id and its requested quantity.
// Price is a unit price in cents, snapshotted when the item was added.
type LineItem struct {
	ProductID string `json:"id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	ImageURL  string `json:"image_url,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Cart is the ordered collection of line items for one session.
type Cart struct {
	Items []LineItem `json:"items"`
}

// Total returns the sum of price times quantity over all items, in cents.
func (c *Cart) Total() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the sum of quantities over all items.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindIndex returns the index of the line item with the given product id,
// or -1 if not present.
func (c *Cart) FindIndex(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// CompactItems returns the persisted form of the given items: image URLs at or
// above MaxStoredImageURLLen are dropped, everything else is kept as-is.
func CompactItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		if len(item.ImageURL) >= MaxStoredImageURLLen {
			item.ImageURL = ""
		}
		out[i] = item
	}
	return out
}

// MinimalItems returns the reduced-fidelity form used when storage is under
// quota pressure: names truncated to MinimalNameLen and optional fields
// dropped.
func MinimalItems(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		if len(item.Name) > MinimalNameLen {
			item.Name = item.Name[:MinimalNameLen]
		}
		item.ImageURL = ""
		out[i] = item
	}
	return out
}

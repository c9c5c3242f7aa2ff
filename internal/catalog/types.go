package catalog

// Wire types for the catalog endpoints. The supported shops share one payload
// family; fields a given shop does not emit simply decode to zero values and
// the extraction strategies in the canonical package fall through to the next
// candidate.

// CategoryTree is the category-tree endpoint response.
type CategoryTree struct {
	Categories []RawCategory `json:"categories"`
}

// RawCategory is one node of the category tree.
type RawCategory struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	SectionName   string        `json:"sectionName"`
	Layout        string        `json:"layout"`
	Subcategories []RawCategory `json:"subcategories"`
}

// ProductListing is the per-category id-listing endpoint response.
type ProductListing struct {
	ProductIDs []int64 `json:"productIds"`
}

// DetailResponse is the batched product-detail endpoint response.
type DetailResponse struct {
	Products []RawProduct `json:"products"`
}

// RawProduct is the full nested payload for one product identity. It is
// ephemeral: expanded into canonical records and discarded.
type RawProduct struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	// Price is the product-level price in minor currency units, the last
	// resort when no size-level price resolves.
	Price  int64      `json:"price"`
	Detail RawDetail  `json:"detail"`
	Colors []RawColor `json:"colors"`
	// BundleProductSummaries carries the nested bundle detail some shops
	// use for multi-color products; its colors take precedence.
	BundleProductSummaries []RawProduct `json:"bundleProductSummaries"`
}

// RawDetail is the product-level detail block.
type RawDetail struct {
	Reference        string     `json:"reference"`
	DisplayReference string     `json:"displayReference"`
	Colors           []RawColor `json:"colors"`
}

// RawColor is one color option of a product.
type RawColor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Reference string `json:"reference"`
	Price     int64  `json:"price"`
	OldPrice  int64  `json:"oldPrice"`
	// ProductID is the variant-specific alternate identifier, when the shop
	// exposes one; zero otherwise.
	ProductID int64      `json:"productId"`
	Image     RawImage   `json:"image"`
	Sizes     []RawSize  `json:"sizes"`
	XMedia    []RawMedia `json:"xmedia"`
}

// RawSize is one size of one color, with its own price and availability.
type RawSize struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Availability string `json:"availability"`
	Price        int64  `json:"price"`
	OldPrice     int64  `json:"oldPrice"`
}

// Buyable reports whether this size can currently be bought.
func (s RawSize) Buyable() bool {
	switch s.Availability {
	case "in_stock", "low_on_stock", "back_soon":
		return true
	}
	return false
}

// RawImage is the color's raw image descriptor: a possibly relative path.
type RawImage struct {
	URL string   `json:"url"`
	Aux []string `json:"aux"`
}

// RawMedia is one media item attached to a color.
type RawMedia struct {
	Role string `json:"role"`
	Kind string `json:"kind"`
	// URL is the absolute delivery URL when the CDN resolved one.
	URL string `json:"url"`
	// Path is the CDN-relative path.
	Path string `json:"path"`
}

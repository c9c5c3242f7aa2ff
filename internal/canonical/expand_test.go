package canonical

import (
	"testing"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
)

func structuredSource() catalog.Source {
	return catalog.Source{
		ID:                 "test",
		Currency:           "EUR",
		CDNBase:            "https://static.test.net",
		ProductURLTemplate: "https://www.test.com/product-p%d.html",
		Uniqueness:         catalog.KeyByReference,
		Reference:          catalog.RefFromStructured,
		PrimaryImageRole:   "main",
	}
}

func buyableSize(price int64) catalog.RawSize {
	return catalog.RawSize{Name: "M", Availability: "in_stock", Price: price}
}

func TestExpandSingleColor(t *testing.T) {
	raw := catalog.RawProduct{
		ID:   555,
		Name: "Wool coat",
		Detail: catalog.RawDetail{
			Colors: []catalog.RawColor{{
				ID:        "800",
				Name:      "Black",
				Reference: "C0128022680002-I2025",
				Sizes:     []catalog.RawSize{buyableSize(12995)},
				XMedia:    []catalog.RawMedia{{Role: "main", URL: "https://cdn/img.jpg"}},
			}},
		},
	}

	recs, stats := Expand(structuredSource(), raw, 77)
	if stats.Total() != 0 {
		t.Fatalf("unexpected drops: %+v", stats)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	rec := recs[0]
	if rec.CanonicalID != 555 {
		t.Errorf("single-color product must keep the parent id, got %d", rec.CanonicalID)
	}
	if rec.Reference != "1280/226/800" {
		t.Errorf("reference = %q, want 1280/226/800", rec.Reference)
	}
	if rec.Price != 12995 {
		t.Errorf("price = %d, want 12995", rec.Price)
	}
	if rec.CategoryID != 77 {
		t.Errorf("category = %d, want 77", rec.CategoryID)
	}
	if len(rec.Siblings) != 0 {
		t.Errorf("single-color product must have no siblings, got %v", rec.Siblings)
	}
	if rec.ImageURL != "https://cdn/img.jpg" {
		t.Errorf("image = %q", rec.ImageURL)
	}
}

func TestExpandMultiColorSiblings(t *testing.T) {
	raw := catalog.RawProduct{
		ID:   600,
		Name: "Tee",
		Detail: catalog.RawDetail{
			Colors: []catalog.RawColor{
				{ID: "250", Name: "White", ProductID: 601, Reference: "C0100011122233-I2025",
					Sizes: []catalog.RawSize{buyableSize(1995)}},
				{ID: "800", Name: "Black", ProductID: 602, Reference: "C0100011122244-I2025",
					Sizes: []catalog.RawSize{buyableSize(1995)}},
			},
		},
	}

	recs, _ := Expand(structuredSource(), raw, 0)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	if recs[0].CanonicalID != 601 || recs[1].CanonicalID != 602 {
		t.Errorf("alternate ids not used: %d, %d", recs[0].CanonicalID, recs[1].CanonicalID)
	}
	if got := recs[0].Siblings["800"]; got != 602 {
		t.Errorf("white's sibling map [800] = %d, want 602", got)
	}
	if got := recs[1].Siblings["250"]; got != 601 {
		t.Errorf("black's sibling map [250] = %d, want 601", got)
	}
	if _, self := recs[0].Siblings["250"]; self {
		t.Error("a variant must not list itself as sibling")
	}
}

func TestExpandColorStrategyPriority(t *testing.T) {
	// Bundle detail colors beat product-level detail colors, which beat the
	// legacy top-level array.
	raw := catalog.RawProduct{
		ID: 1,
		BundleProductSummaries: []catalog.RawProduct{{
			Detail: catalog.RawDetail{Colors: []catalog.RawColor{
				{ID: "bundle", Reference: "C0111122233301-I2025", Sizes: []catalog.RawSize{buyableSize(100)}},
			}},
		}},
		Detail: catalog.RawDetail{Colors: []catalog.RawColor{
			{ID: "detail", Reference: "C0111122233302-I2025", Sizes: []catalog.RawSize{buyableSize(100)}},
		}},
		Colors: []catalog.RawColor{
			{ID: "legacy", Reference: "C0111122233303-I2025", Sizes: []catalog.RawSize{buyableSize(100)}},
		},
	}

	recs, _ := Expand(structuredSource(), raw, 0)
	if len(recs) != 1 || recs[0].ColorID != "bundle" {
		t.Fatalf("expected bundle color to win, got %+v", recs)
	}

	raw.BundleProductSummaries = nil
	recs, _ = Expand(structuredSource(), raw, 0)
	if len(recs) != 1 || recs[0].ColorID != "detail" {
		t.Fatalf("expected detail color to win, got %+v", recs)
	}

	raw.Detail.Colors = nil
	recs, _ = Expand(structuredSource(), raw, 0)
	if len(recs) != 1 || recs[0].ColorID != "legacy" {
		t.Fatalf("expected legacy color to win, got %+v", recs)
	}
}

func TestExpandPriceFallbacks(t *testing.T) {
	src := structuredSource()

	// First buyable size wins over sold-out sizes and the color price.
	color := catalog.RawColor{
		ID:        "1",
		Reference: "C0111122233301-I2025",
		Price:     5000,
		Sizes: []catalog.RawSize{
			{Availability: "out_of_stock", Price: 1000},
			{Availability: "in_stock", Price: 2000},
		},
	}
	raw := catalog.RawProduct{ID: 1, Detail: catalog.RawDetail{Colors: []catalog.RawColor{color}}}
	recs, _ := Expand(src, raw, 0)
	if len(recs) != 1 || recs[0].Price != 2000 {
		t.Fatalf("expected first buyable size price 2000, got %+v", recs)
	}

	// No buyable size: color-level price.
	color.Sizes = []catalog.RawSize{{Availability: "out_of_stock", Price: 1000}}
	raw.Detail.Colors = []catalog.RawColor{color}
	recs, _ = Expand(src, raw, 0)
	if len(recs) != 1 || recs[0].Price != 5000 {
		t.Fatalf("expected color price 5000, got %+v", recs)
	}

	// No color price either: product-level price.
	color.Price = 0
	raw.Detail.Colors = []catalog.RawColor{color}
	raw.Price = 700
	recs, _ = Expand(src, raw, 0)
	if len(recs) != 1 || recs[0].Price != 700 {
		t.Fatalf("expected product price 700, got %+v", recs)
	}

	// Nothing resolves: the variant is dropped and counted.
	raw.Price = 0
	recs, stats := Expand(src, raw, 0)
	if len(recs) != 0 || stats.NoPrice != 1 {
		t.Fatalf("expected a NoPrice drop, got %+v / %+v", recs, stats)
	}
}

func TestExpandDropCounts(t *testing.T) {
	src := structuredSource()

	// No colors at all.
	_, stats := Expand(src, catalog.RawProduct{ID: 1}, 0)
	if stats.NoColors != 1 {
		t.Errorf("NoColors = %d, want 1", stats.NoColors)
	}

	// A color with a price but no parseable reference is dropped; its
	// sibling with a good reference survives.
	raw := catalog.RawProduct{
		ID: 2,
		Detail: catalog.RawDetail{Colors: []catalog.RawColor{
			{ID: "bad", Reference: "???", Sizes: []catalog.RawSize{buyableSize(100)}},
			{ID: "good", Reference: "C0111122233301-I2025", Sizes: []catalog.RawSize{buyableSize(100)}},
		}},
	}
	recs, stats := Expand(src, raw, 0)
	if stats.NoReference != 1 {
		t.Errorf("NoReference = %d, want 1", stats.NoReference)
	}
	if len(recs) != 1 || recs[0].ColorID != "good" {
		t.Errorf("sibling should survive, got %+v", recs)
	}
}

func TestExpandImagePriority(t *testing.T) {
	src := structuredSource()
	base := catalog.RawColor{
		ID:        "1",
		Reference: "C0111122233301-I2025",
		Sizes:     []catalog.RawSize{buyableSize(100)},
	}

	// Primary role wins.
	color := base
	color.XMedia = []catalog.RawMedia{
		{Role: "detail", URL: "https://cdn/detail.jpg"},
		{Role: "main", URL: "https://cdn/main.jpg"},
	}
	recs, _ := Expand(src, catalog.RawProduct{ID: 1, Detail: catalog.RawDetail{Colors: []catalog.RawColor{color}}}, 0)
	if recs[0].ImageURL != "https://cdn/main.jpg" {
		t.Errorf("primary role should win, got %q", recs[0].ImageURL)
	}

	// Any delivery URL beats the raw path.
	color = base
	color.XMedia = []catalog.RawMedia{{Role: "detail", URL: "https://cdn/detail.jpg"}}
	color.Image = catalog.RawImage{URL: "/photos/raw.jpg"}
	recs, _ = Expand(src, catalog.RawProduct{ID: 1, Detail: catalog.RawDetail{Colors: []catalog.RawColor{color}}}, 0)
	if recs[0].ImageURL != "https://cdn/detail.jpg" {
		t.Errorf("delivery URL should win, got %q", recs[0].ImageURL)
	}

	// Raw path is made absolute against the CDN base.
	color = base
	color.Image = catalog.RawImage{URL: "/photos/raw.jpg"}
	recs, _ = Expand(src, catalog.RawProduct{ID: 1, Detail: catalog.RawDetail{Colors: []catalog.RawColor{color}}}, 0)
	if recs[0].ImageURL != "https://static.test.net/photos/raw.jpg" {
		t.Errorf("raw path not absolutized: %q", recs[0].ImageURL)
	}

	// Nothing at all: empty image, record still produced.
	recs, _ = Expand(src, catalog.RawProduct{ID: 1, Detail: catalog.RawDetail{Colors: []catalog.RawColor{base}}}, 0)
	if recs[0].ImageURL != "" {
		t.Errorf("expected empty image, got %q", recs[0].ImageURL)
	}
}

func TestExpandMediaPathReference(t *testing.T) {
	src := structuredSource()
	src.Reference = catalog.RefFromMediaPath

	raw := catalog.RawProduct{
		ID: 9,
		Detail: catalog.RawDetail{Colors: []catalog.RawColor{{
			ID:    "1",
			Sizes: []catalog.RawSize{buyableSize(100)},
			XMedia: []catalog.RawMedia{
				{Role: "main", URL: "https://static.test.net/photos/1280226800_2_1_1.jpg"},
			},
		}}},
	}

	recs, stats := Expand(src, raw, 0)
	if stats.Total() != 0 || len(recs) != 1 {
		t.Fatalf("unexpected result: %+v / %+v", recs, stats)
	}
	if recs[0].Reference != "1280/226/800" {
		t.Errorf("reference = %q, want 1280/226/800", recs[0].Reference)
	}
}

func TestExpandAvailability(t *testing.T) {
	src := structuredSource()
	raw := catalog.RawProduct{
		ID: 3,
		Detail: catalog.RawDetail{Colors: []catalog.RawColor{{
			ID:        "1",
			Reference: "C0111122233301-I2025",
			Price:     900,
			Sizes:     []catalog.RawSize{{Availability: "out_of_stock", Price: 900}},
		}}},
	}
	recs, _ := Expand(src, raw, 0)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Available {
		t.Error("all sizes sold out: record must be unavailable")
	}
}

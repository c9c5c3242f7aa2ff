// Package canonical turns one raw product detail payload into per-color
// canonical records. Everything here is pure: extraction strategies are tried
// in priority order and a variant that cannot resolve a price or reference is
// dropped and counted, never persisted half-filled.
package canonical

import (
	"strings"

	"github.com/Baldasarre/DiscountNotifier-sub000/internal/catalog"
	"github.com/Baldasarre/DiscountNotifier-sub000/internal/storage"
)

// DropStats counts variants dropped during expansion, by cause.
type DropStats struct {
	NoColors    int
	NoPrice     int
	NoReference int
}

// Add accumulates another expansion's drop counts.
func (d *DropStats) Add(o DropStats) {
	d.NoColors += o.NoColors
	d.NoPrice += o.NoPrice
	d.NoReference += o.NoReference
}

// Total returns the total dropped variant count.
func (d DropStats) Total() int {
	return d.NoColors + d.NoPrice + d.NoReference
}

// Expand converts one raw detail payload into canonical records, one per
// surviving color variant. categoryID records which category the identity was
// fetched under.
func Expand(src catalog.Source, raw catalog.RawProduct, categoryID int64) ([]storage.CanonicalProduct, DropStats) {
	var stats DropStats

	colors := extractColors(raw)
	if len(colors) == 0 {
		stats.NoColors++
		return nil, stats
	}

	ids := canonicalIDs(raw, colors)

	var out []storage.CanonicalProduct
	for i, color := range colors {
		price, oldPrice, ok := resolvePrice(raw, color)
		if !ok {
			stats.NoPrice++
			continue
		}

		ref, ok := resolveReference(src, raw, color)
		if !ok {
			stats.NoReference++
			continue
		}

		rec := storage.CanonicalProduct{
			Source:      src.ID,
			CanonicalID: ids[i],
			Reference:   ref,
			Name:        raw.Name,
			ColorID:     color.ID,
			ColorName:   color.Name,
			Price:       price,
			OldPrice:    oldPrice,
			Currency:    src.Currency,
			ImageURL:    resolveImage(src, color),
			ProductURL:  src.ProductURL(ids[i]),
			CategoryID:  categoryID,
			Siblings:    siblingMap(colors, ids, i),
			Available:   anyBuyable(color),
		}
		out = append(out, rec)
	}

	return out, stats
}

// extractColors applies the source-family color extraction strategies in
// priority order: nested bundle detail, then product-level detail colors,
// then the legacy top-level array. First non-empty wins.
func extractColors(raw catalog.RawProduct) []catalog.RawColor {
	for _, bundle := range raw.BundleProductSummaries {
		if len(bundle.Detail.Colors) > 0 {
			return bundle.Detail.Colors
		}
	}
	if len(raw.Detail.Colors) > 0 {
		return raw.Detail.Colors
	}
	return raw.Colors
}

// canonicalIDs assigns one canonical id per color: the variant-specific
// alternate id when the catalog exposes one, else the parent product id.
// Single-color products therefore keep the parent id; multi-color products
// get one distinct id per color when the catalog allows it.
func canonicalIDs(raw catalog.RawProduct, colors []catalog.RawColor) []int64 {
	ids := make([]int64, len(colors))
	for i, c := range colors {
		if c.ProductID != 0 {
			ids[i] = c.ProductID
		} else {
			ids[i] = raw.ID
		}
	}
	return ids
}

// resolvePrice derives the variant price from the first buyable size, falling
// back to the color price, then the product-level price. The boolean is false
// when nothing resolves.
func resolvePrice(raw catalog.RawProduct, color catalog.RawColor) (price, oldPrice int64, ok bool) {
	for _, size := range color.Sizes {
		if size.Buyable() && size.Price > 0 {
			return size.Price, size.OldPrice, true
		}
	}
	if color.Price > 0 {
		return color.Price, color.OldPrice, true
	}
	if raw.Price > 0 {
		return raw.Price, 0, true
	}
	return 0, 0, false
}

// resolveReference derives the normalized reference via the source's rule.
func resolveReference(src catalog.Source, raw catalog.RawProduct, color catalog.RawColor) (string, bool) {
	switch src.Reference {
	case catalog.RefFromMediaPath:
		for _, m := range color.XMedia {
			candidate := m.URL
			if candidate == "" {
				candidate = m.Path
			}
			if candidate == "" {
				continue
			}
			if ref, ok := catalog.ReferenceFromMediaPath(candidate); ok {
				return ref, true
			}
		}
		if color.Image.URL != "" {
			if ref, ok := catalog.ReferenceFromMediaPath(color.Image.URL); ok {
				return ref, true
			}
		}
		return "", false
	default:
		for _, candidate := range []string{color.Reference, raw.Detail.Reference, raw.Detail.DisplayReference} {
			if candidate == "" {
				continue
			}
			if ref, ok := catalog.NormalizeStructuredReference(candidate); ok {
				return ref, true
			}
		}
		return "", false
	}
}

// resolveImage picks the variant image by priority: the media item tagged
// with the source's primary role, then any media item with a delivery URL,
// then the color's raw path made absolute against the CDN base.
func resolveImage(src catalog.Source, color catalog.RawColor) string {
	for _, m := range color.XMedia {
		if m.Role == src.PrimaryImageRole && m.URL != "" {
			return m.URL
		}
	}
	for _, m := range color.XMedia {
		if m.URL != "" {
			return m.URL
		}
	}
	if color.Image.URL != "" {
		if strings.HasPrefix(color.Image.URL, "http://") || strings.HasPrefix(color.Image.URL, "https://") {
			return color.Image.URL
		}
		return strings.TrimRight(src.CDNBase, "/") + "/" + strings.TrimLeft(color.Image.URL, "/")
	}
	return ""
}

// siblingMap builds {otherColorID -> otherCanonicalID} for the variant at
// index i. Nil for single-color products.
func siblingMap(colors []catalog.RawColor, ids []int64, i int) map[string]int64 {
	if len(colors) < 2 {
		return nil
	}
	m := make(map[string]int64, len(colors)-1)
	for j, c := range colors {
		if j == i {
			continue
		}
		m[c.ID] = ids[j]
	}
	return m
}

func anyBuyable(color catalog.RawColor) bool {
	for _, size := range color.Sizes {
		if size.Buyable() {
			return true
		}
	}
	// Colors without size data are assumed listed as buyable.
	return len(color.Sizes) == 0
}

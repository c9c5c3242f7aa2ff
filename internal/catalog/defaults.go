package catalog

import (
	"regexp"
	"time"
)

// Shared tuning for the built-in sources. Individual sources override where
// the catalog's rate limiting is known to be stricter.
const (
	defaultChunkSize      = 100
	defaultCategoryDelay  = 500 * time.Millisecond
	defaultChunkDelay     = 1 * time.Second
	defaultRetryBudget    = 3
	defaultRetryBackoff   = 3 * time.Second
	defaultRequestTimeout = 15 * time.Second
)

var (
	// Product page URLs end in "-p<id>.html" on most of the supported shops.
	productPathPattern = regexp.MustCompile(`-p(\d+)(?:\.html)?$`)
	// A few shops put the id in a bare "/product/<id>" path instead.
	productSegmentPattern = regexp.MustCompile(`/product(?:s)?/(\d+)(?:/|$)`)
)

func baseHeaders(referer string) map[string]string {
	return map[string]string{
		"Accept":     "application/json",
		"User-Agent": "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		"Referer":    referer,
	}
}

// DefaultRegistry returns the built-in sources in resolver priority order.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		zara(), bershka(), pullAndBear(), stradivarius(),
		oysho(), massimoDutti(), lefties(),
	)
	if err != nil {
		// Built-in ids are distinct; this is unreachable without a
		// programming error in this file.
		panic(err)
	}
	return r
}

func zara() Source {
	return Source{
		ID:                  "zara",
		Label:               "Zara",
		CategoryTreeURL:     "https://www.zara.com/itxrest/2/catalog/store/11719/categories",
		CategoryProductsURL: "https://www.zara.com/itxrest/3/catalog/store/11719/category/%d/product-ids",
		ProductDetailsURL:   "https://www.zara.com/itxrest/3/catalog/store/11719/productsArray?productIds=%s",
		CDNBase:             "https://static.zara.net",
		ProductURLTemplate:  "https://www.zara.com/product-p%d.html",
		Domains:             []string{"zara.com", "zara.net"},
		Headers:             baseHeaders("https://www.zara.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByReference,
		Reference:           RefFromStructured,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern:   productPathPattern,
			ProductParams: []string{"v1", "productId"},
			ColorParams:   []string{"v2", "colorId"},
		},
		SkipCategoryNames: []string{"special prices", "join life", "editorial", "lookbook", "gift card"},
	}
}

func bershka() Source {
	return Source{
		ID:                  "bershka",
		Label:               "Bershka",
		CategoryTreeURL:     "https://www.bershka.com/itxrest/2/catalog/store/44009469/category",
		CategoryProductsURL: "https://www.bershka.com/itxrest/2/catalog/store/44009469/category/%d/product",
		ProductDetailsURL:   "https://www.bershka.com/itxrest/2/catalog/store/44009469/productsArray?productIds=%s",
		CDNBase:             "https://static.bershka.net",
		ProductURLTemplate:  "https://www.bershka.com/product-c0p%d.html",
		Domains:             []string{"bershka.com", "bershka.net"},
		Headers:             baseHeaders("https://www.bershka.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByID,
		Reference:           RefFromStructured,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern:   productPathPattern,
			ProductParams: []string{"productId"},
			ColorParams:   []string{"colorId"},
		},
		SkipCategoryNames: []string{"best sellers", "collection", "gift card"},
	}
}

func pullAndBear() Source {
	return Source{
		ID:                  "pullandbear",
		Label:               "Pull&Bear",
		CategoryTreeURL:     "https://www.pullandbear.com/itxrest/2/catalog/store/25009521/category",
		CategoryProductsURL: "https://www.pullandbear.com/itxrest/2/catalog/store/25009521/category/%d/product",
		ProductDetailsURL:   "https://www.pullandbear.com/itxrest/2/catalog/store/25009521/productsArray?productIds=%s",
		CDNBase:             "https://static.pullandbear.net",
		ProductURLTemplate:  "https://www.pullandbear.com/product-p%d.html",
		Domains:             []string{"pullandbear.com", "pullandbear.net"},
		Headers:             baseHeaders("https://www.pullandbear.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByID,
		Reference:           RefFromMediaPath,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern: productPathPattern,
			ColorParams: []string{"cS", "colorId"},
		},
		SkipCategoryNames: []string{"novedades destacadas", "collection", "gift card"},
	}
}

func stradivarius() Source {
	return Source{
		ID:                  "stradivarius",
		Label:               "Stradivarius",
		CategoryTreeURL:     "https://www.stradivarius.com/itxrest/2/catalog/store/55009615/category",
		CategoryProductsURL: "https://www.stradivarius.com/itxrest/2/catalog/store/55009615/category/%d/product",
		ProductDetailsURL:   "https://www.stradivarius.com/itxrest/2/catalog/store/55009615/productsArray?productIds=%s",
		CDNBase:             "https://static.e-stradivarius.net",
		ProductURLTemplate:  "https://www.stradivarius.com/product-p%d.html",
		Domains:             []string{"stradivarius.com", "e-stradivarius.net"},
		Headers:             baseHeaders("https://www.stradivarius.com/"),
		Currency:            "EUR",
		ChunkSize:           80,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByID,
		Reference:           RefFromMediaPath,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern: productSegmentPattern,
			ColorParams: []string{"colorId"},
		},
		SkipCategoryNames: []string{"inspiration", "collection", "gift card"},
	}
}

func oysho() Source {
	return Source{
		ID:                  "oysho",
		Label:               "Oysho",
		CategoryTreeURL:     "https://www.oysho.com/itxrest/2/catalog/store/35009673/category",
		CategoryProductsURL: "https://www.oysho.com/itxrest/2/catalog/store/35009673/category/%d/product",
		ProductDetailsURL:   "https://www.oysho.com/itxrest/2/catalog/store/35009673/productsArray?productIds=%s",
		CDNBase:             "https://static.oysho.net",
		ProductURLTemplate:  "https://www.oysho.com/product-p%d.html",
		Domains:             []string{"oysho.com", "oysho.net"},
		Headers:             baseHeaders("https://www.oysho.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByReference,
		Reference:           RefFromStructured,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern: productPathPattern,
			ColorParams: []string{"colorId"},
		},
		SkipCategoryNames: []string{"editorial", "collection", "gift card"},
	}
}

func massimoDutti() Source {
	return Source{
		ID:                  "massimodutti",
		Label:               "Massimo Dutti",
		CategoryTreeURL:     "https://www.massimodutti.com/itxrest/2/catalog/store/31009457/category",
		CategoryProductsURL: "https://www.massimodutti.com/itxrest/2/catalog/store/31009457/category/%d/product",
		ProductDetailsURL:   "https://www.massimodutti.com/itxrest/2/catalog/store/31009457/productsArray?productIds=%s",
		CDNBase:             "https://static.massimodutti.net",
		ProductURLTemplate:  "https://www.massimodutti.com/product-p%d.html",
		Domains:             []string{"massimodutti.com", "massimodutti.net"},
		Headers:             baseHeaders("https://www.massimodutti.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByReference,
		Reference:           RefFromStructured,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern: productPathPattern,
			ColorParams: []string{"colorId"},
		},
		SkipCategoryNames: []string{"editorial", "lookbook", "gift card"},
	}
}

func lefties() Source {
	return Source{
		ID:                  "lefties",
		Label:               "Lefties",
		CategoryTreeURL:     "https://www.lefties.com/itxrest/2/catalog/store/15009587/category",
		CategoryProductsURL: "https://www.lefties.com/itxrest/2/catalog/store/15009587/category/%d/product",
		ProductDetailsURL:   "https://www.lefties.com/itxrest/2/catalog/store/15009587/productsArray?productIds=%s",
		CDNBase:             "https://static.lefties.com",
		ProductURLTemplate:  "https://www.lefties.com/product-p%d.html",
		Domains:             []string{"lefties.com"},
		Headers:             baseHeaders("https://www.lefties.com/"),
		Currency:            "EUR",
		ChunkSize:           defaultChunkSize,
		CategoryDelay:       defaultCategoryDelay,
		ChunkDelay:          defaultChunkDelay,
		RetryBudget:         defaultRetryBudget,
		RetryBackoff:        defaultRetryBackoff,
		RequestTimeout:      defaultRequestTimeout,
		Uniqueness:          KeyByID,
		Reference:           RefFromMediaPath,
		PrimaryImageRole:    "main",
		LinkRule: LinkRule{
			PathPattern: productPathPattern,
			ColorParams: []string{"colorId"},
		},
		SkipCategoryNames: []string{"collection", "gift card"},
	}
}

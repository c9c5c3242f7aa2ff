// Package catalog defines the per-source configuration and wire types for the
// supported e-commerce catalogs, plus the HTTP client that talks to them.
//
// Every catalog is described by an immutable Source value; the pipeline,
// resolver, and fetcher are parameterized over it and contain no per-brand
// logic. Adding a catalog means adding one Source to DefaultRegistry.
package catalog

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

// UniquenessKey selects which field the store treats as the conflict target
// when upserting canonical products. Catalogs disagree on this: some keep the
// commercial reference stable across relistings, others only the product id.
type UniquenessKey string

const (
	KeyByReference UniquenessKey = "by-reference"
	KeyByID        UniquenessKey = "by-identity"
)

// ReferenceRule selects how a variant's normalized reference is derived.
type ReferenceRule string

const (
	// RefFromStructured parses the structured commercial reference string
	// (e.g. "C0128022680002-I2025") into the grouped display form.
	RefFromStructured ReferenceRule = "structured"
	// RefFromMediaPath extracts the reference digits from a media URL path
	// segment, used by catalogs whose reference field is unreliable.
	RefFromMediaPath ReferenceRule = "media-path"
)

// LinkRule extracts a product identity (and optionally a color id) from a
// marketing URL for one source. All fields are optional; the first strategy
// that yields a value wins.
type LinkRule struct {
	// PathPattern matches against the URL path; the first capture group is
	// the product id.
	PathPattern *regexp.Regexp
	// ProductParams are query parameter names probed for the product id.
	ProductParams []string
	// ColorParams are query parameter names probed for the color id.
	ColorParams []string
}

// Link is a parsed marketing URL: a primary product identity and an optional
// secondary color id.
type Link struct {
	ProductID int64
	ColorID   string
}

// Parse extracts a Link from u. The boolean is false when no product id can
// be derived.
func (r LinkRule) Parse(u *url.URL) (Link, bool) {
	var l Link

	q := u.Query()
	for _, p := range r.ColorParams {
		if v := q.Get(p); v != "" {
			l.ColorID = v
			break
		}
	}

	if r.PathPattern != nil {
		if m := r.PathPattern.FindStringSubmatch(u.Path); len(m) > 1 {
			if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				l.ProductID = id
				return l, true
			}
		}
	}
	for _, p := range r.ProductParams {
		if v := q.Get(p); v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				l.ProductID = id
				return l, true
			}
		}
	}
	return Link{}, false
}

// Source is the immutable configuration for one catalog. Values are created
// in DefaultRegistry at startup and never mutated afterwards.
type Source struct {
	ID    string
	Label string

	// Endpoints. CategoryTreeURL takes no arguments; CategoryProductsURL is
	// a printf template taking the category id; ProductDetailsURL takes a
	// comma-separated id list.
	CategoryTreeURL     string
	CategoryProductsURL string
	ProductDetailsURL   string

	// CDNBase is prepended to relative image paths.
	CDNBase string
	// ProductURLTemplate is a printf template taking the product id,
	// producing the public product page URL.
	ProductURLTemplate string

	// Domains are hostname suffixes this source claims for link resolution.
	Domains []string

	// Headers is the request header set the catalog expects.
	Headers map[string]string

	// Currency is the minor-unit currency code for prices from this source.
	Currency string

	// ChunkSize bounds the number of ids per batched detail request.
	ChunkSize int
	// CategoryDelay is the pause after every per-category listing request.
	CategoryDelay time.Duration
	// ChunkDelay is the pause between batched detail requests.
	ChunkDelay time.Duration
	// RetryBudget is the number of attempts per chunk before it is skipped.
	RetryBudget int
	// RetryBackoff is the fixed pause between chunk attempts.
	RetryBackoff time.Duration
	// RequestTimeout bounds every outbound request; a timeout consumes one
	// retry attempt.
	RequestTimeout time.Duration

	Uniqueness UniquenessKey
	Reference  ReferenceRule
	// PrimaryImageRole is the media role preferred when resolving a
	// variant's image.
	PrimaryImageRole string

	LinkRule LinkRule

	// SkipCategoryNames marks category nodes that are marketing/landing
	// pages rather than product listings.
	SkipCategoryNames []string
}

// ProductURL renders the public product page URL for a product id.
func (s Source) ProductURL(id int64) string {
	return fmt.Sprintf(s.ProductURLTemplate, id)
}

// Registry holds the configured sources in resolver priority order.
type Registry struct {
	sources []Source
	byID    map[string]Source
}

// NewRegistry builds a registry preserving the given priority order.
// Duplicate source ids are rejected.
func NewRegistry(sources ...Source) (*Registry, error) {
	r := &Registry{byID: make(map[string]Source, len(sources))}
	for _, s := range sources {
		if _, dup := r.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", s.ID)
		}
		r.sources = append(r.sources, s)
		r.byID[s.ID] = s
	}
	return r, nil
}

// Sources returns all sources in priority order.
func (r *Registry) Sources() []Source {
	out := make([]Source, len(r.sources))
	copy(out, r.sources)
	return out
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Match finds the source whose domain list covers the URL's host and parses
// the link with that source's rule. The booleans distinguish "unknown host"
// (matched == false) from "known host but unparseable link" (ok == false).
func (r *Registry) Match(u *url.URL) (src Source, link Link, matched, ok bool) {
	host := u.Hostname()
	for _, s := range r.sources {
		for _, d := range s.Domains {
			if host == d || hasDomainSuffix(host, d) {
				link, ok = s.LinkRule.Parse(u)
				return s, link, true, ok
			}
		}
	}
	return Source{}, Link{}, false, false
}

func hasDomainSuffix(host, domain string) bool {
	return len(host) > len(domain)+1 &&
		host[len(host)-len(domain):] == domain &&
		host[len(host)-len(domain)-1] == '.'
}

package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ErrNotFound is returned for a 404 from the catalog. Discovery treats it as
// "zero products" for a single category; the resolver treats it as a delisted
// identity.
var ErrNotFound = errors.New("catalog: not found")

// RequestError is a non-404 HTTP-level failure, classified for retry.
type RequestError struct {
	URL        string
	StatusCode int // 0 for transport errors
	Retryable  bool
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("catalog: %s returned %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("catalog: %s: %v", e.URL, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth another attempt: timeouts,
// transport failures, and 5xx responses are; other HTTP statuses are not.
func IsRetryable(err error) bool {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// Client performs the three catalog requests for one source: category tree,
// per-category id listing, and batched product details. Every request carries
// the source's header set and is bounded by the source's request timeout.
type Client struct {
	src        Source
	httpClient *http.Client
}

// NewClient creates a Client for the source. Pass nil to use a default
// http.Client; the per-request timeout always comes from the source config.
func NewClient(src Source, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{src: src, httpClient: httpClient}
}

// Source returns the source this client is bound to.
func (c *Client) Source() Source { return c.src }

// CategoryTree fetches the full category tree.
func (c *Client) CategoryTree(ctx context.Context) (CategoryTree, error) {
	var tree CategoryTree
	if err := c.getJSON(ctx, c.src.CategoryTreeURL, &tree); err != nil {
		return CategoryTree{}, err
	}
	return tree, nil
}

// CategoryProducts fetches the product id listing for one category.
// A delisted category surfaces as ErrNotFound.
func (c *Client) CategoryProducts(ctx context.Context, categoryID int64) ([]int64, error) {
	var listing ProductListing
	url := fmt.Sprintf(c.src.CategoryProductsURL, categoryID)
	if err := c.getJSON(ctx, url, &listing); err != nil {
		return nil, err
	}
	return listing.ProductIDs, nil
}

// ProductDetails fetches details for a batch of product ids. The response may
// contain fewer products than requested when some ids are delisted.
func (c *Client) ProductDetails(ctx context.Context, ids []int64) ([]RawProduct, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	var detail DetailResponse
	url := fmt.Sprintf(c.src.ProductDetailsURL, strings.Join(parts, ","))
	if err := c.getJSON(ctx, url, &detail); err != nil {
		return nil, err
	}
	return detail.Products, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.src.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range c.src.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors and timeouts are retryable; a timeout consumes
		// one retry attempt like any other failure.
		return &RequestError{URL: url, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		return ErrNotFound
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return &RequestError{URL: url, StatusCode: resp.StatusCode, Retryable: true}
	default:
		io.Copy(io.Discard, resp.Body)
		return &RequestError{URL: url, StatusCode: resp.StatusCode, Retryable: false}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", url, err)
	}
	return nil
}

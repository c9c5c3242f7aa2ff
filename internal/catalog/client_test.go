package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// testSource returns a source pointed at the given test server.
func testSource(serverURL string) Source {
	return Source{
		ID:                  "test",
		CategoryTreeURL:     serverURL + "/categories",
		CategoryProductsURL: serverURL + "/category/%d/products",
		ProductDetailsURL:   serverURL + "/details?ids=%s",
		Headers: map[string]string{
			"Accept":     "application/json",
			"User-Agent": "test-agent",
			"Referer":    serverURL,
		},
		RequestTimeout: 2 * time.Second,
	}
}

func TestClientSendsHeaderSet(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(`{"categories":[]}`))
	}))
	defer srv.Close()

	c := NewClient(testSource(srv.URL), nil)
	if _, err := c.CategoryTree(context.Background()); err != nil {
		t.Fatalf("CategoryTree: %v", err)
	}

	if got.Get("User-Agent") != "test-agent" {
		t.Errorf("User-Agent = %q, want test-agent", got.Get("User-Agent"))
	}
	if got.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", got.Get("Accept"))
	}
	if got.Get("Referer") == "" {
		t.Error("Referer header missing")
	}
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(testSource(srv.URL), nil)
	_, err := c.CategoryProducts(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("404 must not be retryable")
	}
}

func TestClientErrorClassification(t *testing.T) {
	status := http.StatusInternalServerError
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewClient(testSource(srv.URL), nil)

	_, err := c.ProductDetails(context.Background(), []int64{1})
	if !IsRetryable(err) {
		t.Errorf("5xx should be retryable, got %v", err)
	}

	status = http.StatusForbidden
	_, err = c.ProductDetails(context.Background(), []int64{1})
	if err == nil || IsRetryable(err) {
		t.Errorf("403 should be terminal, got %v", err)
	}
}

func TestClientTimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	src := testSource(srv.URL)
	src.RequestTimeout = 20 * time.Millisecond
	c := NewClient(src, nil)

	_, err := c.CategoryTree(context.Background())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsRetryable(err) {
		t.Errorf("timeout should be retryable, got %v", err)
	}
}

func TestClientProductDetails(t *testing.T) {
	var gotIDs string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIDs = r.URL.Query().Get("ids")
		w.Write([]byte(`{"products":[{"id":1,"name":"Coat"},{"id":3,"name":"Hat"}]}`))
	}))
	defer srv.Close()

	c := NewClient(testSource(srv.URL), nil)
	products, err := c.ProductDetails(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("ProductDetails: %v", err)
	}

	if gotIDs != "1,2,3" {
		t.Errorf("requested ids = %q, want 1,2,3", gotIDs)
	}
	// Delisted ids simply come back missing.
	if len(products) != 2 || products[0].ID != 1 || products[1].ID != 3 {
		t.Errorf("unexpected products: %+v", products)
	}

	// An empty id list issues no request.
	products, err = c.ProductDetails(context.Background(), nil)
	if err != nil || products != nil {
		t.Errorf("empty id list: got (%v, %v)", products, err)
	}
}

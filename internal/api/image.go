package api

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxRelayBytes bounds a relayed image body.
const maxRelayBytes = 8 << 20 // 8MB

// handleImageRelay proxies product images from the allow-listed CDN hosts so
// the frontend never talks to the catalogs directly. Responses carry a fixed
// cache lifetime.
func handleImageRelay(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("url")
		if raw == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url query parameter is required")
			return
		}

		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid image url")
			return
		}

		if !hostAllowed(u.Hostname(), deps.ImageHosts) {
			httpError(w, http.StatusForbidden, "forbidden_host", "host %s is not relayable", u.Hostname())
			return
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, u.String(), nil)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "building relay request: %v", err)
			return
		}

		client := deps.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			httpError(w, http.StatusBadGateway, "upstream_error", "fetching image: %v", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			httpError(w, http.StatusBadGateway, "upstream_error", "image host returned %d", resp.StatusCode)
			return
		}

		if ct := resp.Header.Get("Content-Type"); ct != "" {
			w.Header().Set("Content-Type", ct)
		}
		maxAge := deps.ImageMaxAge
		if maxAge <= 0 {
			maxAge = 86400
		}
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
		io.Copy(w, io.LimitReader(resp.Body, maxRelayBytes))
	}
}

// hostAllowed accepts exact matches and subdomains of allow-listed hosts.
func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	appLog "opscal/internal/log"
)

// Source is one read-only ICS overlay feed.
type Source struct {
	ID    string
	Name  string
	URL   string
	Color string
}

// cacheEntry holds the last good body and its validators for one URL.
type cacheEntry struct {
	etag         string
	lastModified string
	body         []byte
}

// Fetcher downloads ICS feeds with conditional GETs (ETag/Last-Modified)
// and falls back to the last good body when the network or server fails.
type Fetcher struct {
	client *http.Client

	mu    sync.Mutex
	cache map[string]cacheEntry
}

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		cache:  make(map[string]cacheEntry),
	}
}

// Fetch returns the feed body and whether it came from the cache.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, bool, error) {
	if src.URL == "" {
		return nil, false, errors.New("ics: source URL is empty")
	}

	f.mu.Lock()
	cached, hasCache := f.cache[src.URL]
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, false, err
	}
	if cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}
	if cached.lastModified != "" {
		req.Header.Set("If-Modified-Since", cached.lastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if hasCache {
			appLog.Error("ics fetch network error, using cached body", err, "id", src.ID, "url", redactURL(src.URL))
			return cached.body, true, nil
		}
		return nil, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, err
		}
		f.mu.Lock()
		f.cache[src.URL] = cacheEntry{
			etag:         resp.Header.Get("ETag"),
			lastModified: resp.Header.Get("Last-Modified"),
			body:         body,
		}
		f.mu.Unlock()
		appLog.Debug("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
		return body, false, nil

	case http.StatusNotModified:
		if !hasCache {
			return nil, false, errors.New("ics: 304 Not Modified without cached body")
		}
		return cached.body, true, nil

	default:
		if hasCache {
			appLog.Error("ics fetch non-OK, using cached body", errors.New(resp.Status), "id", src.ID, "url", redactURL(src.URL))
			return cached.body, true, nil
		}
		return nil, false, fmt.Errorf("ics: %s", resp.Status)
	}
}

// redactURL keeps only scheme and host; feed paths often embed secrets.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"
	for i := 0; i+2 < len(u); i++ {
		if u[i:i+3] != "://" {
			continue
		}
		j := i + 3
		for j < len(u) && u[j] != '/' {
			j++
		}
		return u[:j] + redactedSuffix
	}
	return "ics://...(redacted)"
}

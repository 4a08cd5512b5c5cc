// Package commerce – image cache
//
// Product photography is cached on disk forever, keyed by the backend file
// id: the cache directory is scanned for a file whose stem equals the id, and
// only a miss triggers a download via the backend's signed link. A cache miss
// is not an error. Concurrent resolves of the same id collapse onto a single
// download flight.
package commerce

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// linkResolver obtains the signed download URL for a file id. The client
// supplies it so the cache stays free of auth concerns.
type linkResolver func(ctx context.Context) (string, error)

type imageCache struct {
	dir   string
	http  *http.Client
	group singleflight.Group
}

func newImageCache(dir string, hc *http.Client) *imageCache {
	return &imageCache{dir: dir, http: hc}
}

// Resolve returns the local path for imageID, downloading on first use.
func (ic *imageCache) Resolve(ctx context.Context, imageID string, resolveLink linkResolver) (string, error) {
	if err := os.MkdirAll(ic.dir, 0o755); err != nil {
		return "", err
	}

	if p, ok := ic.lookup(imageID); ok {
		imageCacheHits.Inc()
		return p, nil
	}

	v, err, _ := ic.group.Do(imageID, func() (interface{}, error) {
		// A waiter may have queued behind the flight that just wrote the file.
		if p, ok := ic.lookup(imageID); ok {
			return p, nil
		}

		href, err := resolveLink(ctx)
		if err != nil {
			return "", err
		}
		return ic.download(ctx, imageID, href)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// lookup scans the cache directory for a file whose stem equals imageID.
// Downloads in progress live under dotted temp names and are never matched.
func (ic *imageCache) lookup(imageID string) (string, bool) {
	entries, err := os.ReadDir(ic.dir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if strings.TrimSuffix(name, filepath.Ext(name)) == imageID {
			return filepath.Join(ic.dir, name), true
		}
	}
	return "", false
}

// download streams the signed link into a temp file and renames it to
// <imageID><ext> only after a clean close, so a concurrent lookup either
// misses (and joins the flight) or finds a fully written file. A failed or
// interrupted download leaves nothing under the cached name.
func (ic *imageCache) download(ctx context.Context, imageID, href string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", err
	}
	resp, err := ic.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &BackendError{Status: resp.StatusCode, Body: "image download failed"}
	}

	tmp, err := os.CreateTemp(ic.dir, ".download-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.ReadFrom(resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write image %s: %w", imageID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	dst := filepath.Join(ic.dir, imageID+remoteExt(href))
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	imageDownloads.Inc()
	return dst, nil
}

// remoteExt extracts the file extension from a download URL, ignoring query
// parameters of the signed link.
func remoteExt(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}

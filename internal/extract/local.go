package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Local reads files (plain paths or file:// URIs) and fetches http(s) URLs,
// then converts the bytes by format.
type Local struct {
	// MaxBytes caps how much is read from one locator.
	MaxBytes int64
	// Client performs http(s) fetches.
	Client *http.Client
}

// NewLocal creates a Local extractor reading at most maxBytes.
func NewLocal(maxBytes int64) *Local {
	return &Local{MaxBytes: maxBytes, Client: &http.Client{}}
}

// Extract implements Extractor.
func (l *Local) Extract(ctx context.Context, locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", nil
	}

	u, err := url.Parse(locator)
	if err == nil && len(u.Scheme) > 1 {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l.fetch(ctx, u)
		case "file":
			return l.readFile(u.Path)
		default:
			return "", fmt.Errorf("%w: scheme %q", ErrUnsupported, u.Scheme)
		}
	}
	return l.readFile(locator)
}

// FilePath returns the local path a locator refers to, if any.
func FilePath(locator string) (string, bool) {
	locator = strings.TrimSpace(locator)
	u, err := url.Parse(locator)
	if err == nil && len(u.Scheme) > 1 {
		if strings.EqualFold(u.Scheme, "file") {
			return u.Path, true
		}
		return "", false
	}
	return locator, locator != ""
}

func (l *Local) readFile(p string) (string, error) {
	format := formatForExt(filepath.Ext(p))
	if format == formatUnknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(p))
	}

	f, err := os.Open(p)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", p, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(l.limit(f))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p, err)
	}
	return convert(format, data)
}

func (l *Local) fetch(ctx context.Context, u *url.URL) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", u, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", u, resp.StatusCode)
	}

	format := formatForExt(path.Ext(u.Path))
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		if f := formatForMediaType(mediaType); f != formatUnknown {
			format = f
		}
	}
	if format == formatUnknown {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, u)
	}

	data, err := io.ReadAll(l.limit(resp.Body))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", u, err)
	}
	return convert(format, data)
}

func (l *Local) limit(r io.Reader) io.Reader {
	if l.MaxBytes <= 0 {
		return r
	}
	return io.LimitReader(r, l.MaxBytes)
}

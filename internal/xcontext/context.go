// Package xcontext implements the shared ExtractionContext: an HTTP client
// configured with locale-aware headers, an ordered locale preference list,
// and a handle on the namespaced Cache. One instance is constructed per
// client session and shared by reference across concurrent extractions.
package xcontext

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/transcast-org/ytextract/internal/cache"
)

const defaultUserAgent = "okhttp/4.9.3"

// ExtractionContext is the process-scoped handle threaded through every
// extractor call. Safe for concurrent use once constructed.
type ExtractionContext struct {
	HTTPClient *http.Client
	Locales    []string
	Cache      cache.Cache

	userAgent string
}

// Option customizes a newly constructed ExtractionContext.
type Option func(*ExtractionContext)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ctx *ExtractionContext) { ctx.HTTPClient = c }
}

// WithCache overrides the default cache implementation.
func WithCache(c cache.Cache) Option {
	return func(ctx *ExtractionContext) { ctx.Cache = c }
}

// WithLocale overrides OS locale detection with an explicit BCP-47 tag.
func WithLocale(tag string) Option {
	return func(ctx *ExtractionContext) { ctx.Locales = localeList(tag) }
}

// New constructs an ExtractionContext: detects the process locale (falling
// back to en-US when unset, empty, or the POSIX C locale), builds the
// Accept-Language header from decreasing q-weights, and wires a filesystem
// cache rooted at the given app name.
func New(appName string, opts ...Option) (*ExtractionContext, error) {
	ctx := &ExtractionContext{
		Locales:   localeList(detectProcessLocale()),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(ctx)
	}
	if ctx.Cache == nil {
		fsCache, err := cache.NewFSCache(appName)
		if err != nil {
			ctx.Cache = cache.NewStubCache()
		} else {
			ctx.Cache = fsCache
		}
	}
	if ctx.HTTPClient == nil {
		ctx.HTTPClient = &http.Client{
			Transport: &localeRoundTripper{
				base:          http.DefaultTransport,
				userAgent:     ctx.userAgent,
				acceptLangHdr: acceptLanguageHeader(ctx.Locales),
			},
		}
	}
	return ctx, nil
}

func detectProcessLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			// Strip encoding suffix, e.g. "en_US.UTF-8" -> "en_US".
			if idx := strings.IndexByte(v, '.'); idx >= 0 {
				v = v[:idx]
			}
			v = strings.ReplaceAll(v, "_", "-")
			if v != "" && !strings.EqualFold(v, "C") && !strings.EqualFold(v, "POSIX") {
				return v
			}
		}
	}
	return "en-US"
}

// localeList derives [full, first-two-letters] when the tag is longer than
// two characters, else [full], per the original extraction context's locale
// preference rule.
func localeList(tag string) []string {
	canon := tag
	if parsed, err := language.Parse(tag); err == nil {
		canon = parsed.String()
	}
	if len(canon) > 2 {
		base, _ := language.Make(canon).Base()
		return []string{canon, base.String()}
	}
	return []string{canon}
}

func acceptLanguageHeader(locales []string) string {
	parts := make([]string, 0, len(locales))
	for i, locale := range locales {
		if i == 0 {
			parts = append(parts, locale)
			continue
		}
		q := 1.0 - float64(i)/10.0
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", locale, q))
	}
	return strings.Join(parts, ", ")
}

type localeRoundTripper struct {
	base          http.RoundTripper
	userAgent     string
	acceptLangHdr string
}

func (rt *localeRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", rt.userAgent)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", rt.acceptLangHdr)
	}
	return rt.base.RoundTrip(req)
}

// SendRequest issues req and returns the raw response body reader's bytes.
// resourceName is advisory, used only by observability hooks.
func (ctx *ExtractionContext) SendRequest(goCtx context.Context, resourceName string, req *http.Request) (*http.Response, error) {
	req = req.WithContext(goCtx)
	return ctx.HTTPClient.Do(req)
}

// GetBody performs a GET and returns the response body as a string.
func (ctx *ExtractionContext) GetBody(goCtx context.Context, resourceName, url string) (string, error) {
	req, err := http.NewRequestWithContext(goCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := ctx.SendRequest(goCtx, resourceName, req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%s: http status %d", resourceName, resp.StatusCode)
	}
	return string(body), nil
}

// GetJSON performs an HTTP call described by req and decodes the JSON body
// into v.
func GetJSON[T any](goCtx context.Context, ctx *ExtractionContext, resourceName string, req *http.Request) (T, error) {
	var out T
	resp, err := ctx.SendRequest(goCtx, resourceName, req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("%s: http status %d", resourceName, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("%s: decode: %w", resourceName, err)
	}
	return out, nil
}

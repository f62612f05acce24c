package tab

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/transcast-org/ytextract/internal/innertube"
	"github.com/transcast-org/ytextract/internal/xcontext"
)

// mainHosts mirrors the set of hostnames the system recognizes as YouTube.
var mainHosts = map[string]bool{
	"www.youtube.com":   true,
	"m.youtube.com":      true,
	"youtube.com":        true,
	"music.youtube.com":  true,
}

// ListBreed classifies what kind of listing a ListExtraction represents.
type ListBreed int

const (
	ListBreedPlaylist ListBreed = iota
	ListBreedChannel
)

// ListExtraction is the result of resolving a playlist/channel URL and
// walking its first page of results.
type ListExtraction struct {
	ID           string
	Breed        ListBreed
	IsEndless    bool
	Entries      []Entry
	Continuation string
}

// ListContinuation is the result of paging past the first page.
type ListContinuation struct {
	ID           string
	Entries      []Entry
	Continuation string
}

// Extractor implements the Tab / List Extractor: URL matching plus the
// navigation-resolve -> browse -> browse-continuation pagination flow.
type Extractor struct{}

// Match reports whether rawURL looks like a playlist or channel URL this
// extractor understands: an http(s) YouTube host whose first path segment
// is one of playlist, channel, c, or user.
func (Extractor) Match(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if !mainHosts[u.Host] {
		return false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return false
	}
	switch segments[0] {
	case "playlist", "channel", "c", "user":
		return true
	default:
		return false
	}
}

// ExtractInitial resolves rawURL to a browseId, fetches the first page, and
// returns its ListExtraction.
func (Extractor) ExtractInitial(ctx context.Context, xctx *xcontext.ExtractionContext, rawURL string) (*ListExtraction, error) {
	resolved, err := resolveURL(ctx, xctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resolved.Endpoint.BrowseEndpoint == nil {
		return nil, fmt.Errorf("tab: navigation/resolve_url did not yield a browseEndpoint for %q", rawURL)
	}
	browseID := resolved.Endpoint.BrowseEndpoint.BrowseID
	params := resolved.Endpoint.BrowseEndpoint.Params

	resp, err := browse(ctx, xctx, browseID, "", params)
	if err != nil {
		return nil, err
	}
	vl, err := findVideoList(resp.Contents)
	if err != nil {
		return nil, err
	}
	if vl == nil {
		return nil, fmt.Errorf("tab: no video list renderer found for browseId %q", browseID)
	}
	entries, continuation, err := parseEntries(vl.Contents)
	if err != nil {
		return nil, err
	}
	if continuation == "" && len(vl.Continuations) > 0 {
		continuation = vl.Continuations[0].NextContinuationData.Continuation
	}

	breed := ListBreedChannel
	if strings.HasPrefix(browseID, "VL") {
		breed = ListBreedPlaylist
	}

	return &ListExtraction{
		ID:           browseID,
		Breed:        breed,
		IsEndless:    false,
		Entries:      entries,
		Continuation: continuation,
	}, nil
}

// ExtractContinuation fetches the next page given a prior ID and
// continuation token.
func (Extractor) ExtractContinuation(ctx context.Context, xctx *xcontext.ExtractionContext, browseID, continuation string) (*ListContinuation, error) {
	resp, err := browse(ctx, xctx, browseID, continuation, "")
	if err != nil {
		return nil, err
	}

	entries, next, err := continuationEntries(resp)
	if err != nil {
		return nil, err
	}

	return &ListContinuation{
		ID:           browseID,
		Entries:      entries,
		Continuation: next,
	}, nil
}

// continuationEntries pulls the continuationItems out of whichever of the
// response's two possible top-level fields is populated, then parses them as
// playlist content rows.
func continuationEntries(resp innertube.BrowseResponse) ([]Entry, string, error) {
	var items []json.RawMessage
	for _, action := range resp.OnResponseReceivedActions {
		if action.AppendContinuationItemsAction != nil {
			items = append(items, action.AppendContinuationItemsAction.ContinuationItems...)
		}
		if action.ReloadContinuationItemsCommand != nil {
			items = append(items, action.ReloadContinuationItemsCommand.ContinuationItems...)
		}
	}
	for _, endpoint := range resp.OnResponseReceivedEndpoints {
		if endpoint.AppendContinuationItemsAction != nil {
			items = append(items, endpoint.AppendContinuationItemsAction.ContinuationItems...)
		}
		if endpoint.ReloadContinuationItemsCommand != nil {
			items = append(items, endpoint.ReloadContinuationItemsCommand.ContinuationItems...)
		}
	}
	if len(items) == 0 {
		return nil, "", fmt.Errorf("tab: continuation response carried no continuationItems")
	}
	return parseEntries(items)
}

package tab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/transcast-org/ytextract/internal/innertube"
	"github.com/transcast-org/ytextract/internal/xcontext"
)

// browsingClient is the profile the List Extractor issues browse and
// navigation/resolve_url requests as. ANDROID is used in the teacher's
// original because it tolerates these endpoints without a JS player.
var browsingClient = innertube.AndroidClient

func postInnertube[T any](ctx context.Context, xctx *xcontext.ExtractionContext, endpoint string, body any) (T, error) {
	var out T
	payload, err := json.Marshal(body)
	if err != nil {
		return out, err
	}
	target := fmt.Sprintf("https://%s/youtubei/v1/%s?key=%s", browsingClient.Host, endpoint, url.QueryEscape(browsingClient.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", browsingClient.UserAgent)
	return xcontext.GetJSON[T](ctx, xctx, "innertube:"+endpoint, req)
}

func resolveURL(ctx context.Context, xctx *xcontext.ExtractionContext, rawURL string) (innertube.NavigationResolveResponse, error) {
	req := innertube.NewNavigationResolveRequest(browsingClient, rawURL)
	return postInnertube[innertube.NavigationResolveResponse](ctx, xctx, "navigation/resolve_url", req)
}

func browse(ctx context.Context, xctx *xcontext.ExtractionContext, browseID, continuation, params string) (innertube.BrowseResponse, error) {
	req := innertube.NewBrowseRequest(browsingClient, browseID, continuation)
	req.Params = params
	return postInnertube[innertube.BrowseResponse](ctx, xctx, "browse", req)
}

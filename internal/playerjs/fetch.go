package playerjs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/transcast-org/ytextract/internal/cache"
	"github.com/transcast-org/ytextract/internal/innertube"
)

// Player Script Fetcher & Parser (spec §4.4): retrieves the watch (or embed)
// page and regex-extracts the player bundle URL+hash, the initial player
// response, and the signature timestamp.

var (
	jsURLPattern = regexp.MustCompile(`"jsUrl"\s*:\s*"(/s/player/([a-z0-9]+)/(?:player_ias\.vflset/[^/"]+|player-plasma-ias-phone-[^/."]+\.vflset)/base\.js)"`)
	playerJSONRE = regexp.MustCompile(`(?s)var ytInitialPlayerResponse\s*=\s*(\{.+?\});`)
	stsPattern   = regexp.MustCompile(`[{,]"STS"\s*:\s*([0-9]{5})[,}]`)
)

// WatchPageExtract holds what the Player Script Fetcher pulls out of a
// watch/embed page.
type WatchPageExtract struct {
	ScriptPath     string
	ScriptHash     string
	InitialPlayer  *innertube.PlayerResponse
	STS            int
	HasSTS         bool
}

// FetchWatchPage retrieves https://{host}/watch?v={id} (or /embed/{id} when
// embed is true) using userAgent when set, and extracts the player bundle
// URL+hash, the initial player response (tolerating trailing bytes), and the
// STS.
func FetchWatchPage(ctx context.Context, httpClient *http.Client, host, videoID, userAgent string, embed bool) (*WatchPageExtract, string, error) {
	var target string
	if embed {
		target = fmt.Sprintf("https://%s/embed/%s", host, videoID)
	} else {
		target = fmt.Sprintf("https://%s/watch?v=%s", host, videoID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("playerjs: watch page status %d", resp.StatusCode)
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	page := string(bodyBytes)

	extract, err := ParseWatchPage(page)
	if err != nil {
		return nil, page, err
	}
	return extract, page, nil
}

// ParseWatchPage extracts the player bundle URL+hash, the initial player
// response, and the STS from an already-fetched watch/embed page body.
func ParseWatchPage(page string) (*WatchPageExtract, error) {
	out := &WatchPageExtract{}

	if m := jsURLPattern.FindStringSubmatch(page); m != nil {
		out.ScriptPath = m[1]
		out.ScriptHash = m[2]
	} else {
		return nil, fmt.Errorf("playerjs: jsUrl not found in watch page")
	}

	if m := playerJSONRE.FindStringSubmatch(page); m != nil {
		var pr innertube.PlayerResponse
		// Non-strict: ignore trailing bytes past the matched object; a
		// malformed inner object still surfaces as a decode error.
		if err := json.Unmarshal([]byte(m[1]), &pr); err != nil {
			return nil, fmt.Errorf("playerjs: decode ytInitialPlayerResponse: %w", err)
		}
		out.InitialPlayer = &pr
	}

	if m := stsPattern.FindStringSubmatch(page); m != nil {
		var sts int
		if _, err := fmt.Sscanf(m[1], "%d", &sts); err == nil {
			out.STS = sts
			out.HasSTS = true
		}
	}

	return out, nil
}

// ScriptURL joins a host and the extracted script path into an absolute URL.
func ScriptURL(host, path string) string {
	u := url.URL{Scheme: "https", Host: host, Path: path}
	return u.String()
}

// GetSigDefinition returns the cached SigDefinition for scriptHash if
// present; otherwise it runs ExtractFunctions against playerJS and stores the
// result under (youtube_js_player_fns, scriptHash). Subsequent calls at the
// same hash skip the regex pass entirely.
func GetSigDefinition(c cache.Cache, scriptHash, playerJS string) (SigDefinition, error) {
	if raw, ok, err := c.Get(cache.NamespaceYouTubeJSPlayerFns, scriptHash); err == nil && ok {
		var def SigDefinition
		if err := json.Unmarshal(raw, &def); err == nil {
			return def, nil
		}
	}

	def, err := ExtractFunctions(playerJS)
	if err != nil {
		return SigDefinition{}, err
	}
	if raw, err := json.Marshal(def); err == nil {
		_ = c.Set(cache.NamespaceYouTubeJSPlayerFns, scriptHash, raw)
	}
	return def, nil
}

package orchestrator

import (
	"context"
	"fmt"

	"github.com/transcast-org/ytextract/internal/innertube"
	"github.com/transcast-org/ytextract/internal/playerjs"
	"github.com/transcast-org/ytextract/internal/xcontext"
)

// ExtractLevel mirrors the Extractable intent levels (spec §3).
type ExtractLevel int

const (
	ExtractNone ExtractLevel = iota
	ExtractBasic
	ExtractExtended
)

// Extractable governs which clients the resolver attempts.
type Extractable struct {
	Metadata ExtractLevel
	Playback ExtractLevel
}

// Resolver drives the Multi-Client Resolver policy (spec §4.7) sequentially:
// each attempt's routing decision depends on Players collected by previous
// attempts, so attempts cannot run concurrently with each other. The
// underlying Engine's goroutine/retry/backoff plumbing is reused per attempt
// (SPEC_FULL.md §13) rather than for racing multiple clients at once.
type Resolver struct {
	engine   *Engine
	registry innertube.Registry
	allowJS  bool
}

// NewResolver builds a Resolver over an already-configured Engine (which
// owns the innertube.Config: HTTP client, PO-token policy, event hook, etc).
func NewResolver(engine *Engine, registry innertube.Registry, allowJS bool) *Resolver {
	return &Resolver{engine: engine, registry: registry, allowJS: allowJS}
}

// Resolve implements the policy of spec §4.7 end-to-end: picks the initial
// client, attempts it, applies the conditional fallback triggers against the
// accumulated Players, deduplicates structurally, and reduces the result via
// the Response Reducer. Returns ErrNoPlayersFetched if no attempt yields a
// Player.
func (r *Resolver) Resolve(ctx context.Context, xctx *xcontext.ExtractionContext, videoID string, wanted Extractable) (*innertube.PlayerResponse, error) {
	attempted := map[string]bool{}
	var players []*innertube.PlayerResponse

	attempt := func(clientName string) {
		if attempted[clientName] {
			return
		}
		attempted[clientName] = true
		profile, ok := r.registry.Get(clientName)
		if !ok {
			r.engine.emitExtractionEvent("resolve", "lookup", clientName, "client profile not registered")
			return
		}
		player, err := r.attemptClient(ctx, xctx, videoID, profile)
		if err != nil {
			r.engine.emitExtractionEvent("resolve", "attempt", clientName, err.Error())
			return
		}
		player.SourceClient = profile.Name
		stampFormatSourceClient(player, profile.Name)
		players = append(players, player)
	}

	// Step 1: initial client by extraction intent.
	switch {
	case wanted.Metadata == ExtractExtended:
		attempt("web")
	case wanted.Playback == ExtractNone:
		attempt("ios")
	default:
		attempt("android")
	}

	// Step 2: ANDROID if empty, or playback wanted and not every Player is
	// Ok/AgeGate yet.
	if len(players) == 0 || (wanted.Playback != ExtractNone && !allOkOrAgeGate(players)) {
		attempt("android")
	}

	// Step 3: TV_EMBEDDED bypasses age-gates, only when JS support compiled in.
	if r.allowJS && wanted.Playback != ExtractNone && anyAgeGated(players) {
		attempt("tv_embedded")
	}

	// Step 4: IOS again for unique HLS formats on live streams.
	if wanted.Playback == ExtractExtended && anyLive(players) {
		attempt("ios")
	}

	players = dedupPlayers(players)
	if len(players) == 0 {
		return nil, &AllClientsFailedError{}
	}

	reduced := Reduce(players)
	return reduced, nil
}

// stampFormatSourceClient tags every format in player with clientName so
// that unionByItag's per-itag merge (internal/orchestrator.Reduce) preserves
// which client actually served each format, not just which client the whole
// Player came from.
func stampFormatSourceClient(player *innertube.PlayerResponse, clientName string) {
	for i := range player.StreamingData.Formats {
		player.StreamingData.Formats[i].SourceClient = clientName
	}
	for i := range player.StreamingData.AdaptiveFormats {
		player.StreamingData.AdaptiveFormats[i].SourceClient = clientName
	}
	for i := range player.StreamingData.HlsFormats {
		player.StreamingData.HlsFormats[i].SourceClient = clientName
	}
}

func allOkOrAgeGate(players []*innertube.PlayerResponse) bool {
	for _, p := range players {
		cat := p.PlayabilityStatus.Category()
		if cat != innertube.PlayabilityOk && cat != innertube.PlayabilityAgeGate {
			return false
		}
	}
	return true
}

func anyAgeGated(players []*innertube.PlayerResponse) bool {
	for _, p := range players {
		if p.PlayabilityStatus.Category() == innertube.PlayabilityAgeGate {
			return true
		}
	}
	return false
}

func anyLive(players []*innertube.PlayerResponse) bool {
	for _, p := range players {
		if p.VideoDetails.IsLive {
			return true
		}
	}
	return false
}

// attemptClient routes to the per-client strategy of spec §4.7: a plain
// /player POST for clients that don't need JS, or the watch/embed-page +
// sandbox path for clients that do.
func (r *Resolver) attemptClient(ctx context.Context, xctx *xcontext.ExtractionContext, videoID string, profile innertube.ClientProfile) (*innertube.PlayerResponse, error) {
	if !profile.RequireJSPlayer {
		req := innertube.NewPlayerRequest(profile, videoID)
		return r.engine.fetch(ctx, req, profile, videoID)
	}
	if !r.allowJS {
		return nil, fmt.Errorf("%s: %s", profile.Name, innertube.StatusNoAllowJS)
	}
	return r.attemptJSClient(ctx, xctx, videoID, profile)
}

func (r *Resolver) attemptJSClient(ctx context.Context, xctx *xcontext.ExtractionContext, videoID string, profile innertube.ClientProfile) (*innertube.PlayerResponse, error) {
	isEmbed := isEmbeddedClientName(profile.Name)

	watch, page, err := playerjs.FetchWatchPage(ctx, xctx.HTTPClient, profile.Host, videoID, profile.UserAgent, isEmbed)
	if err != nil {
		return nil, err
	}

	var player *innertube.PlayerResponse
	switch {
	case !isEmbed:
		if watch.InitialPlayer == nil {
			return nil, fmt.Errorf("%s: no initial player response in watch page", profile.Name)
		}
		player = watch.InitialPlayer
	case profile.Name == "WEB_EMBEDDED_PLAYER" && watch.InitialPlayer != nil:
		player = watch.InitialPlayer
	default:
		// sts may be 0 here (e.g. first time seeing this bundle); the
		// extracted js_sts from the bundle, applied below, covers that case.
		req := innertube.NewPlayerRequest(profile, videoID, innertube.PlayerRequestOptions{
			SignatureTimestamp: watch.STS,
		})
		resp, err := r.engine.fetch(ctx, req, profile, videoID)
		if err != nil {
			return nil, err
		}
		player = resp
	}

	scriptURL := playerjs.ScriptURL(profile.Host, watch.ScriptPath)
	playerJS, err := fetchScriptBody(ctx, xctx, scriptURL, watch.ScriptHash)
	if err != nil {
		return nil, err
	}

	def, err := playerjs.GetSigDefinition(xctx.Cache, watch.ScriptHash, playerJS)
	if err != nil {
		return nil, err
	}
	if def.JSSts == nil && watch.HasSTS {
		sts := watch.STS
		def.JSSts = &sts
	}

	playerjs.DecodeStreamingData(def, playerJS, profile.Name, watch.ScriptHash, player)
	_ = page
	return player, nil
}

func isEmbeddedClientName(name string) bool {
	switch name {
	case "WEB_EMBEDDED_PLAYER", "TV_EMBEDDED":
		return true
	default:
		return false
	}
}

// fetchScriptBody retrieves the player bundle body. resourceName labels the
// request for observability hooks only.
func fetchScriptBody(ctx context.Context, xctx *xcontext.ExtractionContext, scriptURL, scriptHash string) (string, error) {
	return xctx.GetBody(ctx, "player_js:"+scriptHash, scriptURL)
}

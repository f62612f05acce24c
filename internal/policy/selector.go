package policy

import (
	"strings"

	"github.com/transcast-org/ytextract/internal/innertube"
)

// Selector decides which clients to use for a given video request.
type Selector interface {
	Select(videoID string) []innertube.ClientProfile
	Registry() innertube.Registry
}

// defaultOrder is the yt-dlp-style client priority used when the caller
// supplies no overrides: a VR client first (rarely rate-limited), the web
// clients, then the mobile/embedded/TV fallbacks.
var defaultOrder = []string{
	"android_vr",
	"web",
	"web_safari",
	"android",
	"ios",
	"mweb",
	"web_embedded",
	"tv",
}

type defaultSelector struct {
	registry  innertube.Registry
	overrides []string
	skip      map[string]bool
}

// NewSelector builds a Selector over registry. overrides, when non-empty,
// replaces defaultOrder with exactly the named clients in the given order
// (duplicates collapsed, unknown names dropped); skip removes named clients
// from whichever order is in effect. Both accept either a registry key
// ("web_embedded") or the client's reported profile name
// ("WEB_EMBEDDED_PLAYER"), case-insensitively.
func NewSelector(registry innertube.Registry, overrides []string, skip []string) Selector {
	return &defaultSelector{
		registry:  registry,
		overrides: overrides,
		skip:      normalizeSet(skip),
	}
}

func (s *defaultSelector) Registry() innertube.Registry {
	return s.registry
}

func (s *defaultSelector) Select(videoID string) []innertube.ClientProfile {
	order := defaultOrder
	if len(s.overrides) > 0 {
		order = s.overrides
	}

	var profiles []innertube.ClientProfile
	seen := map[string]bool{}
	for _, name := range order {
		key := normalizeClientName(name)
		if key == "" || seen[key] || s.skip[key] {
			continue
		}
		profile, ok := s.resolve(key, name)
		if !ok {
			continue
		}
		seen[key] = true
		profiles = append(profiles, profile)
	}
	return profiles
}

// resolve looks raw up directly as a registry key first, then falls back to
// matching any registered profile's reported Name case-insensitively (the
// alias path "TVHTML5" -> registry key "tv").
func (s *defaultSelector) resolve(normalized, raw string) (innertube.ClientProfile, bool) {
	if p, ok := s.registry.Get(normalized); ok {
		return p, true
	}
	for _, p := range s.registry.All() {
		if strings.EqualFold(p.Name, raw) {
			return p, true
		}
	}
	return innertube.ClientProfile{}, false
}

func normalizeClientName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		key := normalizeClientName(n)
		if key == "" {
			continue
		}
		set[key] = true
	}
	return set
}

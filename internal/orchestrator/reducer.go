package orchestrator

import (
	"github.com/transcast-org/ytextract/internal/innertube"
)

// Reduce implements the Response Reducer (spec §4.8): a left fold over the
// collected Players into a single merged Player. microformat is kept from
// the accumulator unless the accumulator's is the zero value; playability
// is promoted to Ok as soon as any Player reports it; streaming_data is
// unioned by itag, first writer wins, across formats, adaptive_formats, and
// hls_formats independently.
//
// The hls_formats branch writes into streaming_data.hls_formats, fixing a
// documented defect in the system this was distilled from, which wrote HLS
// formats into the plain formats list.
func Reduce(players []*innertube.PlayerResponse) *innertube.PlayerResponse {
	if len(players) == 0 {
		return nil
	}
	acc := &innertube.PlayerResponse{
		PlayabilityStatus: players[0].PlayabilityStatus,
		VideoDetails:      players[0].VideoDetails,
	}
	seenFormats := map[int]bool{}
	seenAdaptive := map[int]bool{}
	seenHLS := map[int]bool{}

	for i, p := range players {
		if i == 0 {
			acc.Microformat = p.Microformat
			acc.Captions = p.Captions
		} else {
			if isZeroMicroformat(acc.Microformat) {
				acc.Microformat = p.Microformat
			}
			if len(acc.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
				acc.Captions = p.Captions
			}
		}

		if p.PlayabilityStatus.Category() == innertube.PlayabilityOk {
			acc.PlayabilityStatus = p.PlayabilityStatus
		}
		if p.VideoDetails.IsLive {
			acc.VideoDetails.IsLive = true
		}
		if acc.VideoDetails.LengthSeconds == "" {
			acc.VideoDetails.LengthSeconds = p.VideoDetails.LengthSeconds
		}

		acc.StreamingData.Formats = unionByItag(acc.StreamingData.Formats, p.StreamingData.Formats, seenFormats)
		acc.StreamingData.AdaptiveFormats = unionByItag(acc.StreamingData.AdaptiveFormats, p.StreamingData.AdaptiveFormats, seenAdaptive)
		acc.StreamingData.HlsFormats = unionByItag(acc.StreamingData.HlsFormats, p.StreamingData.HlsFormats, seenHLS)

		if acc.StreamingData.HlsManifestURL == "" {
			acc.StreamingData.HlsManifestURL = p.StreamingData.HlsManifestURL
		}
		if acc.StreamingData.DashManifestURL == "" {
			acc.StreamingData.DashManifestURL = p.StreamingData.DashManifestURL
		}
	}

	return acc
}

func unionByItag(into, from []innertube.Format, seen map[int]bool) []innertube.Format {
	for _, f := range from {
		if seen[f.Itag] {
			continue
		}
		seen[f.Itag] = true
		into = append(into, f)
	}
	return into
}

// isZeroMicroformat reports whether m carries no usable data. Comparison
// can't use == directly: PlayerMicroformatRenderer holds a []string field
// (AvailableCountries), which is not comparable.
func isZeroMicroformat(m innertube.Microformat) bool {
	r := m.PlayerMicroformatRenderer
	return r.Title.SimpleText == "" && r.PublishDate == "" && r.UploadDate == "" && r.OwnerChannelName == ""
}

// dedupPlayers drops structurally identical Players (same playability
// status and same set of itags across all three format lists), keeping the
// first occurrence. Attempting the same client twice, or two clients
// returning byte-identical streaming data, should not double-count in the
// reduction.
func dedupPlayers(players []*innertube.PlayerResponse) []*innertube.PlayerResponse {
	type fingerprint struct {
		status string
		itags  string
	}
	seen := map[fingerprint]bool{}
	out := make([]*innertube.PlayerResponse, 0, len(players))
	for _, p := range players {
		fp := fingerprint{status: p.PlayabilityStatus.Status, itags: itagSignature(p)}
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, p)
	}
	return out
}

func itagSignature(p *innertube.PlayerResponse) string {
	var b []byte
	appendList := func(list []innertube.Format) {
		for _, f := range list {
			b = append(b, byte(f.Itag), byte(f.Itag>>8), ',')
		}
	}
	appendList(p.StreamingData.Formats)
	b = append(b, '|')
	appendList(p.StreamingData.AdaptiveFormats)
	b = append(b, '|')
	appendList(p.StreamingData.HlsFormats)
	return string(b)
}

// Package youtube wires the orchestrator, playerjs sandbox, and subtitle
// expander into the externally observable RecordingExtractor operation:
// resolve the multi-client fallback, reduce to one Player, and project it
// into an Extraction.
package youtube

import (
	"context"
	"net/mail"
	"strconv"
	"time"

	"github.com/transcast-org/ytextract/internal/innertube"
	"github.com/transcast-org/ytextract/internal/orchestrator"
	"github.com/transcast-org/ytextract/internal/subtitles"
	"github.com/transcast-org/ytextract/internal/types"
	"github.com/transcast-org/ytextract/internal/xcontext"
)

// RecordingExtractor turns a video ID into a full Extraction.
type RecordingExtractor struct {
	Resolver *orchestrator.Resolver
}

// NewRecordingExtractor builds a RecordingExtractor over an already
// constructed Resolver (which itself wraps an Engine and a Registry).
func NewRecordingExtractor(resolver *orchestrator.Resolver) *RecordingExtractor {
	return &RecordingExtractor{Resolver: resolver}
}

// ResolvePlayer runs the resolver for videoID and returns the reduced
// Player as-is, without projecting it into an Extraction. Callers that
// need the raw response (e.g. a host client preserving its own
// VideoDetails/StreamingData-shaped public API) use this instead of
// Extract; the streaming data it carries already has signature/n-param
// resolution applied by the resolver's sandbox/decipherer pass.
func (e *RecordingExtractor) ResolvePlayer(ctx context.Context, xctx *xcontext.ExtractionContext, videoID string, wanted orchestrator.Extractable) (*innertube.PlayerResponse, error) {
	return e.Resolver.Resolve(ctx, xctx, videoID, wanted)
}

// Extract runs the resolver for videoID under the given extraction intent,
// then projects the reduced Player into an Extraction.
func (e *RecordingExtractor) Extract(ctx context.Context, xctx *xcontext.ExtractionContext, videoID string, wanted orchestrator.Extractable) (*types.Extraction, error) {
	player, err := e.ResolvePlayer(ctx, xctx, videoID, wanted)
	if err != nil {
		return nil, err
	}

	metadata := buildMetadata(player)
	formats := establishFormats(player.StreamingData)

	var subtitlePointers []types.SubtitlePointerURL
	tracks := player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) > 0 {
		expanded, err := subtitles.Expand(tracks)
		if err != nil {
			return nil, err
		}
		subtitlePointers = make([]types.SubtitlePointerURL, len(expanded))
		for i, p := range expanded {
			subtitlePointers[i] = types.SubtitlePointerURL{
				LanguageCode:       p.LanguageCode,
				Name:               p.Name,
				Extension:          p.Extension,
				URL:                p.URL,
				IsMachineGenerated: p.IsMachineGenerated,
			}
		}
	}

	return &types.Extraction{
		Metadata:             metadata,
		EstablishedFormats:   formats,
		EstablishedSubtitles: subtitlePointers,
	}, nil
}

func buildMetadata(player *innertube.PlayerResponse) types.MediaMetadata {
	vd := player.VideoDetails
	mf := player.Microformat.PlayerMicroformatRenderer

	liveStatus := types.NotLive
	if vd.IsLive {
		liveStatus = types.IsLive
	} else if vd.IsLiveContent {
		liveStatus = types.WasLive
	}

	var duration *int
	if liveStatus == types.NotLive {
		if seconds, err := strconv.Atoi(vd.LengthSeconds); err == nil {
			duration = &seconds
		}
	}

	ageLimit := 0
	if player.PlayabilityStatus.Category() == innertube.PlayabilityAgeGate {
		ageLimit = 18
	}

	var viewCount int64
	if vd.ViewCount != "" {
		if v, err := strconv.ParseInt(vd.ViewCount, 10, 64); err == nil {
			viewCount = v
		}
	}

	return types.MediaMetadata{
		ID:          vd.VideoID,
		Title:       vd.Title,
		Author:      vd.Author,
		ChannelID:   vd.ChannelID,
		Description: vd.ShortDescription,
		PublishDate: parseRFC2822(mf.PublishDate),
		UploadDate:  parseRFC2822(mf.UploadDate),
		LiveStatus:  liveStatus,
		Duration:    duration,
		AgeLimit:    ageLimit,
		ViewCount:   viewCount,
	}
}

// parseRFC2822 mirrors the source system's date handling: a field that
// fails to parse as RFC 2822 degrades to nil rather than failing the whole
// extraction.
func parseRFC2822(raw string) *string {
	if raw == "" {
		return nil
	}
	t, err := mail.ParseDate(raw)
	if err != nil {
		return nil
	}
	formatted := t.Format(time.RFC3339)
	return &formatted
}

func establishFormats(sd innertube.StreamingData) []types.MediaFormatEstablished {
	var out []types.MediaFormatEstablished
	appendAll := func(list []innertube.Format, isHLS bool) {
		for _, f := range list {
			out = append(out, establishFormat(f, isHLS))
		}
	}
	appendAll(sd.Formats, false)
	appendAll(sd.AdaptiveFormats, false)
	appendAll(sd.HlsFormats, true)
	return out
}

func establishFormat(f innertube.Format, isHLS bool) types.MediaFormatEstablished {
	breed := classifyBreed(f, isHLS)

	var contentLength int64
	if f.ContentLength != "" {
		contentLength, _ = strconv.ParseInt(f.ContentLength, 10, 64)
	}
	var approxDuration int64
	if f.ApproxDurationMs != "" {
		approxDuration, _ = strconv.ParseInt(f.ApproxDurationMs, 10, 64)
	}
	var sampleRate int
	if f.AudioSampleRate != "" {
		if v, err := strconv.Atoi(f.AudioSampleRate); err == nil {
			sampleRate = v
		}
	}

	return types.MediaFormatEstablished{
		ID:              strconv.Itoa(f.Itag),
		Breed:           breed,
		URL:             f.URL,
		IsHLS:           isHLS,
		MimeType:        f.MimeType,
		Bitrate:         f.Bitrate,
		Width:           f.Width,
		Height:          f.Height,
		FPS:             f.FPS,
		AudioChannels:   f.AudioChannels,
		AudioSampleRate: sampleRate,
		ContentLength:   contentLength,
		ApproxDuration:  approxDuration,
	}
}

// classifyBreed mirrors the source system's heuristic: mime type decides in
// the common case, but HLS variant playlists rarely label audio/video
// cleanly, so channel presence disambiguates those.
func classifyBreed(f innertube.Format, isHLS bool) types.FormatBreed {
	switch {
	case hasPrefix(f.MimeType, "audio/"):
		return types.BreedAudio
	case containsMultipleCodecs(f.MimeType):
		return types.BreedAudioVideo
	case isHLS:
		if f.AudioChannels > 0 {
			return types.BreedAudio
		}
		return types.BreedVideo
	default:
		return types.BreedVideo
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func containsMultipleCodecs(mimeType string) bool {
	for i := 0; i+1 < len(mimeType); i++ {
		if mimeType[i] == ',' && mimeType[i+1] == ' ' {
			return true
		}
	}
	return false
}

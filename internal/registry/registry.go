// Package registry implements the URL Matcher & Dispatcher: an ordered list
// of extractors, each either a recording extractor or a list extractor, with
// first-match-wins lookup. No match is a valid outcome (the URL belongs to
// no known service), not an error.
package registry

import (
	"context"

	"github.com/transcast-org/ytextract/internal/orchestrator"
	"github.com/transcast-org/ytextract/internal/tab"
	"github.com/transcast-org/ytextract/internal/types"
	"github.com/transcast-org/ytextract/internal/xcontext"
	"github.com/transcast-org/ytextract/internal/youtube"
)

// Kind distinguishes what an AnyExtractor produces.
type Kind int

const (
	KindRecording Kind = iota
	KindList
)

// AnyExtractor is the tagged union of the two extractor capabilities: a
// given registered extractor is either a RecordingExtractor or a
// ListExtractor, never both, mirroring the distinction between a single
// video and a paginated collection.
type AnyExtractor struct {
	Name      string
	Kind      Kind
	Match     func(rawURL string) bool
	Recording *youtube.RecordingExtractor
	List      *tab.Extractor
}

// Registry is the ordered, first-match-wins extractor list.
type Registry struct {
	extractors []AnyExtractor
}

// New builds a Registry wired with the YouTube recording and list
// extractors. Additional services (SoundCloud, Bandcamp, ...) register the
// same way once their extractors exist.
func New(resolver *orchestrator.Resolver) *Registry {
	recordingExtractor := youtube.NewRecordingExtractor(resolver)
	listExtractor := tab.Extractor{}

	return &Registry{
		extractors: []AnyExtractor{
			{
				Name:      "youtube-tab",
				Kind:      KindList,
				Match:     listExtractor.Match,
				List:      &listExtractor,
			},
			{
				Name:      "youtube-recording",
				Kind:      KindRecording,
				Match:     youtube.MatchURL,
				Recording: recordingExtractor,
			},
		},
	}
}

// Lookup returns the first registered extractor whose Match reports true
// for rawURL, or false if none matches.
func (r *Registry) Lookup(rawURL string) (AnyExtractor, bool) {
	for _, e := range r.extractors {
		if e.Match(rawURL) {
			return e, true
		}
	}
	return AnyExtractor{}, false
}

// ExtractRecording resolves rawURL to a video ID and runs the matched
// extractor's RecordingExtractor against it.
func (e AnyExtractor) ExtractRecording(ctx context.Context, xctx *xcontext.ExtractionContext, rawURL string, wanted orchestrator.Extractable) (*types.Extraction, error) {
	videoID, err := youtube.VideoID(rawURL)
	if err != nil {
		return nil, err
	}
	return e.Recording.Extract(ctx, xctx, videoID, wanted)
}

// ExtractListInitial runs the matched extractor's ListExtractor against
// rawURL for the first page of results.
func (e AnyExtractor) ExtractListInitial(ctx context.Context, xctx *xcontext.ExtractionContext, rawURL string) (*tab.ListExtraction, error) {
	return e.List.ExtractInitial(ctx, xctx, rawURL)
}

// ExtractListContinuation pages past the first page of a prior ListExtraction.
func (e AnyExtractor) ExtractListContinuation(ctx context.Context, xctx *xcontext.ExtractionContext, browseID, continuation string) (*tab.ListContinuation, error) {
	return e.List.ExtractContinuation(ctx, xctx, browseID, continuation)
}

// Package tab implements the Tab / List Extractor (spec §4.10 analogue):
// resolving a playlist/channel URL to a browseId, walking YouTube's browse
// renderer tree down to its video list, and paging through continuations.
//
// The renderer tree is a tagged union (exactly one of several known renderer
// keys is present at each level); an unrecognized kind is a decode error,
// not a silently skipped node, since a silent skip would return an
// incomplete list with no indication anything was dropped.
package tab

import (
	"encoding/json"
	"fmt"

	"github.com/transcast-org/ytextract/internal/innertube"
)

// Renderer is the tagged union of every browse renderer kind this package
// understands how to walk. Exactly one field is non-nil after a successful
// unmarshal.
type Renderer struct {
	SingleColumnBrowseResultsRenderer *ColumnBrowseResultsRenderer
	TwoColumnBrowseResultsRenderer    *ColumnBrowseResultsRenderer
	ItemSectionRenderer               *ItemSectionRenderer
	TabRenderer                       *TabRenderer
	SectionListRenderer               *SectionListRenderer
	PlaylistVideoListRenderer         *PlaylistVideoListRenderer
}

type ColumnBrowseResultsRenderer struct {
	Tabs []json.RawMessage `json:"tabs"`
}

type TabRenderer struct {
	Content *json.RawMessage `json:"content"`
}

type SectionListRenderer struct {
	Contents []json.RawMessage `json:"contents"`
}

type ItemSectionRenderer struct {
	Contents []json.RawMessage `json:"contents"`
}

type PlaylistVideoListRenderer struct {
	Contents      []json.RawMessage `json:"contents"`
	Continuations []Continuation    `json:"continuations"`
}

type Continuation struct {
	NextContinuationData ContinuationData `json:"nextContinuationData"`
}

type ContinuationData struct {
	Continuation string `json:"continuation"`
}

type ContinuationItemRenderer struct {
	ContinuationEndpoint struct {
		ContinuationCommand struct {
			Token string `json:"token"`
		} `json:"continuationCommand"`
	} `json:"continuationEndpoint"`
}

// UnmarshalJSON decodes exactly one known renderer key out of data, failing
// if none is present (an unrecognized renderer kind is treated as the same
// condition — there is no way to tell the two apart from the wire shape
// alone, and both must surface as an error rather than an empty walk).
func (r *Renderer) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch {
	case probe["singleColumnBrowseResultsRenderer"] != nil:
		var v ColumnBrowseResultsRenderer
		if err := json.Unmarshal(probe["singleColumnBrowseResultsRenderer"], &v); err != nil {
			return err
		}
		r.SingleColumnBrowseResultsRenderer = &v
	case probe["twoColumnBrowseResultsRenderer"] != nil:
		var v ColumnBrowseResultsRenderer
		if err := json.Unmarshal(probe["twoColumnBrowseResultsRenderer"], &v); err != nil {
			return err
		}
		r.TwoColumnBrowseResultsRenderer = &v
	case probe["itemSectionRenderer"] != nil:
		var v ItemSectionRenderer
		if err := json.Unmarshal(probe["itemSectionRenderer"], &v); err != nil {
			return err
		}
		r.ItemSectionRenderer = &v
	case probe["tabRenderer"] != nil:
		var v TabRenderer
		if err := json.Unmarshal(probe["tabRenderer"], &v); err != nil {
			return err
		}
		r.TabRenderer = &v
	case probe["sectionListRenderer"] != nil:
		var v SectionListRenderer
		if err := json.Unmarshal(probe["sectionListRenderer"], &v); err != nil {
			return err
		}
		r.SectionListRenderer = &v
	case probe["playlistVideoListRenderer"] != nil:
		var v PlaylistVideoListRenderer
		if err := json.Unmarshal(probe["playlistVideoListRenderer"], &v); err != nil {
			return err
		}
		r.PlaylistVideoListRenderer = &v
	default:
		keys := make([]string, 0, len(probe))
		for k := range probe {
			keys = append(keys, k)
		}
		return fmt.Errorf("tab: unrecognized renderer kind, keys=%v", keys)
	}
	return nil
}

// findVideoList walks a raw renderer node down to the first
// PlaylistVideoListRenderer it contains, per get_videos's recursive descent:
// column renderers and item sections try each child in turn; tab renderers
// and section lists descend into their single relevant child.
func findVideoList(raw json.RawMessage) (*PlaylistVideoListRenderer, error) {
	var r Renderer
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	switch {
	case r.SingleColumnBrowseResultsRenderer != nil:
		return findVideoListAmong(r.SingleColumnBrowseResultsRenderer.Tabs)
	case r.TwoColumnBrowseResultsRenderer != nil:
		return findVideoListAmong(r.TwoColumnBrowseResultsRenderer.Tabs)
	case r.ItemSectionRenderer != nil:
		return findVideoListAmong(r.ItemSectionRenderer.Contents)
	case r.TabRenderer != nil:
		if r.TabRenderer.Content == nil {
			return nil, nil
		}
		return findVideoList(*r.TabRenderer.Content)
	case r.SectionListRenderer != nil:
		if len(r.SectionListRenderer.Contents) == 0 {
			return nil, nil
		}
		return findVideoList(r.SectionListRenderer.Contents[0])
	case r.PlaylistVideoListRenderer != nil:
		return r.PlaylistVideoListRenderer, nil
	}
	return nil, nil
}

func findVideoListAmong(nodes []json.RawMessage) (*PlaylistVideoListRenderer, error) {
	for _, node := range nodes {
		vl, err := findVideoList(node)
		if err != nil {
			return nil, err
		}
		if vl != nil {
			return vl, nil
		}
	}
	return nil, nil
}

// Entry is one video row extracted from a PlaylistVideoListRenderer's
// contents: a playlistVideoRenderer or a continuationItemRenderer (the
// latter carries the next continuation token, not a video).
type Entry struct {
	VideoID         string
	Title           string
	ShortBylineText string
	LengthText      string
}

type playlistVideoRendererWire struct {
	PlaylistVideoRenderer *struct {
		VideoID         string              `json:"videoId"`
		Title           innertube.LangText  `json:"title"`
		ShortBylineText innertube.LangText  `json:"shortBylineText"`
		LengthText      innertube.LangText  `json:"lengthText"`
	} `json:"playlistVideoRenderer"`
	ContinuationItemRenderer *ContinuationItemRenderer `json:"continuationItemRenderer"`
}

// parseEntries splits a PlaylistVideoListRenderer's contents into video
// Entries and an optional trailing continuation token (renderer kinds here
// are deliberately looser than Renderer's tagged union: a contents row is
// either a video or a continuation marker, and anything else is an error).
func parseEntries(nodes []json.RawMessage) ([]Entry, string, error) {
	var entries []Entry
	var continuation string
	for _, node := range nodes {
		var w playlistVideoRendererWire
		if err := json.Unmarshal(node, &w); err != nil {
			return nil, "", err
		}
		switch {
		case w.PlaylistVideoRenderer != nil:
			pvr := w.PlaylistVideoRenderer
			entries = append(entries, Entry{
				VideoID:         pvr.VideoID,
				Title:           langTextToString(pvr.Title),
				ShortBylineText: langTextToString(pvr.ShortBylineText),
				LengthText:      langTextToString(pvr.LengthText),
			})
		case w.ContinuationItemRenderer != nil:
			continuation = w.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand.Token
		default:
			return nil, "", fmt.Errorf("tab: unrecognized playlist content row")
		}
	}
	return entries, continuation, nil
}

func langTextToString(t innertube.LangText) string {
	if t.SimpleText != "" {
		return t.SimpleText
	}
	if len(t.Runs) > 0 {
		return t.Runs[0].Text
	}
	return ""
}

// Package subtitles implements the Subtitle Expander (spec §4.9): turning
// each caption track a Player carries into one fetchable descriptor per
// supported subtitle format.
package subtitles

import (
	"net/url"

	"github.com/transcast-org/ytextract/internal/innertube"
)

// Extensions are the subtitle formats emitted for every caption track, in a
// fixed order so callers get a stable 6n-length result for n tracks.
var Extensions = []string{"vtt", "ttml", "srv3", "srv2", "srv1", "json3"}

// Pointer is one fetchable subtitle descriptor.
type Pointer struct {
	LanguageCode        string
	Name                string
	Extension           string
	URL                 string
	IsMachineGenerated  bool
}

// Expand produces Extensions-many Pointers per track, one per supported
// extension, by rewriting each track's base_url `fmt` query parameter.
func Expand(tracks []innertube.CaptionTrack) ([]Pointer, error) {
	out := make([]Pointer, 0, len(tracks)*len(Extensions))
	for _, t := range tracks {
		base, err := url.Parse(t.BaseURL)
		if err != nil {
			return nil, err
		}
		name := t.Name.SimpleText
		if name == "" && len(t.Name.Runs) > 0 {
			name = t.Name.Runs[0].Text
		}
		isASR := t.Kind == "asr"

		for _, ext := range Extensions {
			u := *base
			q := u.Query()
			q.Set("fmt", ext)
			u.RawQuery = q.Encode()
			out = append(out, Pointer{
				LanguageCode:       t.LanguageCode,
				Name:               name,
				Extension:          ext,
				URL:                u.String(),
				IsMachineGenerated: isASR,
			})
		}
	}
	return out, nil
}

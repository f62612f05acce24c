package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcast-org/ytextract/internal/innertube"
)

func TestReduceUnionsFormatsByItagFirstWriterWins(t *testing.T) {
	a := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			AdaptiveFormats: []innertube.Format{{Itag: 140, Bitrate: 100}},
		},
	}
	b := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			AdaptiveFormats: []innertube.Format{{Itag: 140, Bitrate: 999}, {Itag: 251, Bitrate: 50}},
		},
	}

	merged := Reduce([]*innertube.PlayerResponse{a, b})
	require.NotNil(t, merged)
	require.Len(t, merged.StreamingData.AdaptiveFormats, 2)

	byItag := map[int]innertube.Format{}
	for _, f := range merged.StreamingData.AdaptiveFormats {
		byItag[f.Itag] = f
	}
	assert.Equal(t, 100, byItag[140].Bitrate, "first writer should win on a duplicate itag")
	assert.Equal(t, 50, byItag[251].Bitrate)
}

func TestReduceWritesHLSFormatsIntoHlsFormatsNotFormats(t *testing.T) {
	a := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			HlsFormats: []innertube.Format{{Itag: 300}},
		},
	}

	merged := Reduce([]*innertube.PlayerResponse{a})
	require.NotNil(t, merged)
	assert.Len(t, merged.StreamingData.HlsFormats, 1)
	assert.Empty(t, merged.StreamingData.Formats)
}

func TestReducePromotesPlayabilityToOK(t *testing.T) {
	ageGated := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "LOGIN_REQUIRED"},
	}
	ok := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
	}

	merged := Reduce([]*innertube.PlayerResponse{ageGated, ok})
	require.NotNil(t, merged)
	assert.Equal(t, "OK", merged.PlayabilityStatus.Status)
}

func TestReduceKeepsAccumulatorMicroformatUnlessZero(t *testing.T) {
	withMicroformat := &innertube.PlayerResponse{
		Microformat: innertube.Microformat{
			PlayerMicroformatRenderer: innertube.PlayerMicroformatRenderer{
				PublishDate: "2020-01-01",
			},
		},
	}
	empty := &innertube.PlayerResponse{}

	merged := Reduce([]*innertube.PlayerResponse{withMicroformat, empty})
	require.NotNil(t, merged)
	assert.Equal(t, "2020-01-01", merged.Microformat.PlayerMicroformatRenderer.PublishDate)
}

func TestDedupPlayersDropsStructuralDuplicates(t *testing.T) {
	a := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			Formats: []innertube.Format{{Itag: 18}},
		},
	}
	b := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			Formats: []innertube.Format{{Itag: 18}},
		},
	}

	deduped := dedupPlayers([]*innertube.PlayerResponse{a, b})
	assert.Len(t, deduped, 1)
}

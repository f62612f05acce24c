package playerjs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcast-org/ytextract/internal/innertube"
)

func workingDef() SigDefinition {
	return SigDefinition{
		SigCode:   `const sig=function(s){return s.split("").reverse().join("");};`,
		NcodeCode: `const ncode=function(n){return n+"_decoded";};`,
	}
}

func TestSandboxSigAndNcode(t *testing.T) {
	sb, err := NewSandbox(workingDef())
	require.NoError(t, err)

	sigOut, err := sb.sig("cba")
	require.NoError(t, err)
	assert.Equal(t, "abc", sigOut)

	ncodeOut, err := sb.ncode("raw")
	require.NoError(t, err)
	assert.Equal(t, "raw_decoded", ncodeOut)
}

func TestApplyToStreamingDataResolvesSignatureCipherAndNParam(t *testing.T) {
	sb, err := NewSandbox(workingDef())
	require.NoError(t, err)

	sd := &innertube.StreamingData{
		AdaptiveFormats: []innertube.Format{
			{Itag: 140, SignatureCipher: "url=https%3A%2F%2Fexample.com%2Fvid%3Fn%3Draw&s=cba&sp=sig"},
		},
	}
	err = sb.ApplyToStreamingData(sd)
	require.NoError(t, err)

	got := sd.AdaptiveFormats[0].URL
	assert.Contains(t, got, "sig=abc")
	assert.Contains(t, got, "n=raw_decoded")
}

func TestApplyToStreamingDataRejectsFormatWithNeitherURLNorCipher(t *testing.T) {
	sb, err := NewSandbox(workingDef())
	require.NoError(t, err)

	sd := &innertube.StreamingData{Formats: []innertube.Format{{Itag: 18}}}
	err = sb.ApplyToStreamingData(sd)
	assert.Error(t, err)
}

func TestDecodeStreamingDataDowngradesOnSandboxFailure(t *testing.T) {
	player := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			Formats: []innertube.Format{{Itag: 18, URL: "https://example.com/v"}},
		},
	}
	broken := SigDefinition{SigCode: `this is not valid javascript {{{`, NcodeCode: ""}

	DecodeStreamingData(broken, "", "ANDROID", "deadbeef", player)

	assert.Equal(t, innertube.StatusFailedSignature, player.PlayabilityStatus.Status)
	assert.Contains(t, player.PlayabilityStatus.Reason, "ANDROID")
	assert.Contains(t, player.PlayabilityStatus.Reason, "deadbeef")
	assert.Empty(t, player.StreamingData.Formats)
}

func TestDecodeStreamingDataFallsBackToDeciphererWhenSandboxFails(t *testing.T) {
	fixtureJS := loadFixture(t, "synthetic_basejs_fixture.js")
	player := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"},
		StreamingData: innertube.StreamingData{
			Formats: []innertube.Format{
				{Itag: 18, SignatureCipher: "url=https%3A%2F%2Fexample.com%2Fvid%3Fn%3D12345&s=abcdef"},
			},
		},
	}
	broken := SigDefinition{SigCode: `this is not valid javascript {{{`, NcodeCode: ""}

	DecodeStreamingData(broken, fixtureJS, "ANDROID", "deadbeef", player)

	require.Equal(t, "OK", player.PlayabilityStatus.Status)
	got := player.StreamingData.Formats[0].URL
	assert.Contains(t, got, "signature=cedf")
	assert.Contains(t, got, "n=2345")
}

func TestDecodeStreamingDataSkipsNonOkPlayers(t *testing.T) {
	player := &innertube.PlayerResponse{
		PlayabilityStatus: innertube.PlayabilityStatus{Status: "LOGIN_REQUIRED"},
	}
	DecodeStreamingData(workingDef(), "", "IOS", "abc123", player)
	assert.Equal(t, "LOGIN_REQUIRED", player.PlayabilityStatus.Status)
}

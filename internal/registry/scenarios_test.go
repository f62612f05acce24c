package registry

import (
	"context"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcast-org/ytextract/internal/innertube"
	"github.com/transcast-org/ytextract/internal/orchestrator"
	"github.com/transcast-org/ytextract/internal/policy"
	"github.com/transcast-org/ytextract/internal/types"
	"github.com/transcast-org/ytextract/internal/xcontext"
	"github.com/transcast-org/ytextract/internal/youtube"
)

// TestURLMatchScenario covers the URL-match scenario: every recognized URL
// shape for one video resolves to the same ID and is routed to the
// recording extractor, never the list extractor.
func TestURLMatchScenario(t *testing.T) {
	const videoID = "dQw4w9WgXcQ"
	urls := []string{
		"https://www.youtube.com/watch?v=" + videoID,
		"https://www.youtube.com/video/" + videoID,
		"https://www.youtube.com/shorts/" + videoID,
		"https://youtu.be/" + videoID,
	}

	r := New(orchestrator.NewResolver(nil, innertube.NewRegistry(), false))
	for _, u := range urls {
		entry, ok := r.Lookup(u)
		require.Truef(t, ok, "no extractor matched %q", u)
		assert.Equal(t, KindRecording, entry.Kind, "url %q", u)
		require.NotNil(t, entry.Recording)

		id, err := youtube.VideoID(u)
		require.NoError(t, err)
		assert.Equal(t, videoID, id, "url %q", u)
	}
}

// requireScenario skips unless explicitly asked to hit the network; these
// scenarios resolve real YouTube videos through the full registry ->
// orchestrator.Resolver -> youtube.RecordingExtractor / tab.Extractor chain.
func requireScenario(t *testing.T) {
	t.Helper()
	if os.Getenv("YTV1_E2E") != "1" {
		t.Skip("set YTV1_E2E=1 to run live scenario tests")
	}
}

func newScenarioRegistry(t *testing.T) (*Registry, *xcontext.ExtractionContext) {
	t.Helper()
	clientRegistry := innertube.NewRegistry()
	selector := policy.NewSelector(clientRegistry, nil, nil)
	engine := orchestrator.NewEngine(selector, innertube.Config{
		HTTPClient:     &http.Client{Timeout: 45 * time.Second},
		RequestTimeout: 45 * time.Second,
	})
	resolver := orchestrator.NewResolver(engine, clientRegistry, true)
	xctx, err := xcontext.New("ytv1-scenario-test")
	require.NoError(t, err)
	return New(resolver), xctx
}

// TestSimpleRecordingScenario: a normal, fully public video resolved with
// metadata=Extended, playback=Extended.
func TestSimpleRecordingScenario(t *testing.T) {
	requireScenario(t)
	reg, xctx := newScenarioRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	entry, ok := reg.Lookup("https://youtu.be/KushW6zvazM")
	require.True(t, ok)

	extraction, err := entry.ExtractRecording(ctx, xctx, "https://youtu.be/KushW6zvazM", orchestrator.Extractable{
		Metadata: orchestrator.ExtractExtended,
		Playback: orchestrator.ExtractExtended,
	})
	require.NoError(t, err)

	assert.Equal(t, "DECO*27 - ゴーストルール feat. 初音ミク", extraction.Metadata.Title)
	assert.Equal(t, types.NotLive, extraction.Metadata.LiveStatus)
	assert.Equal(t, 0, extraction.Metadata.AgeLimit)

	found := false
	for _, f := range extraction.EstablishedFormats {
		if f.ID == "251" {
			found = true
			assert.Equal(t, types.BreedAudio, f.Breed)
			assert.Equal(t, 2, f.AudioChannels)
			assert.True(t, strings.Contains(f.URL, ".googlevideo.com"), "url=%q", f.URL)
		}
	}
	assert.True(t, found, "expected a format with id 251")
}

// TestAgeGatedRecordingScenario: an age-restricted video still yields formats
// when playback=Extended, with age_limit surfaced.
func TestAgeGatedRecordingScenario(t *testing.T) {
	requireScenario(t)
	reg, xctx := newScenarioRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	entry, ok := reg.Lookup("https://www.youtube.com/video/Tq92D6wQ1mg")
	require.True(t, ok)

	extraction, err := entry.ExtractRecording(ctx, xctx, "https://www.youtube.com/video/Tq92D6wQ1mg", orchestrator.Extractable{
		Metadata: orchestrator.ExtractBasic,
		Playback: orchestrator.ExtractExtended,
	})
	require.NoError(t, err)

	assert.Equal(t, 18, extraction.Metadata.AgeLimit)
	require.NotEmpty(t, extraction.EstablishedFormats)

	found := false
	for _, f := range extraction.EstablishedFormats {
		if f.ID == "251" {
			found = true
			assert.Equal(t, 2, f.AudioChannels)
		}
	}
	assert.True(t, found, "expected a format with id 251")
}

// TestLiveRecordingScenario: a live broadcast reports IsLive.
func TestLiveRecordingScenario(t *testing.T) {
	requireScenario(t)
	reg, xctx := newScenarioRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	entry, ok := reg.Lookup("https://www.youtube.com/watch?v=jfKfPfyJRdk")
	require.True(t, ok)

	extraction, err := entry.ExtractRecording(ctx, xctx, "https://www.youtube.com/watch?v=jfKfPfyJRdk", orchestrator.Extractable{
		Metadata: orchestrator.ExtractExtended,
		Playback: orchestrator.ExtractBasic,
	})
	require.NoError(t, err)
	assert.Equal(t, types.IsLive, extraction.Metadata.LiveStatus)
}

// TestSubtitleExpansionScenario: 3 caption tracks expand to 3*6 = 18
// SubtitlePointerURL entries.
func TestSubtitleExpansionScenario(t *testing.T) {
	requireScenario(t)
	reg, xctx := newScenarioRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	entry, ok := reg.Lookup("https://www.youtube.com/watch?v=UnIhRpIT7nc")
	require.True(t, ok)

	extraction, err := entry.ExtractRecording(ctx, xctx, "https://www.youtube.com/watch?v=UnIhRpIT7nc", orchestrator.Extractable{
		Metadata: orchestrator.ExtractExtended,
		Playback: orchestrator.ExtractNone,
	})
	require.NoError(t, err)
	assert.Len(t, extraction.EstablishedSubtitles, 18)
}

// TestPlaylistPaginationScenario: a playlist with many entries pages past
// its first batch via continuation tokens.
func TestPlaylistPaginationScenario(t *testing.T) {
	requireScenario(t)
	reg, xctx := newScenarioRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	const playlistURL = "https://www.youtube.com/playlist?list=PLpTn8onHfnD2QpCHU-llSG9hbQUwKIVFr"
	entry, ok := reg.Lookup(playlistURL)
	require.True(t, ok)
	assert.Equal(t, KindList, entry.Kind)

	initial, err := entry.ExtractListInitial(ctx, xctx, playlistURL)
	require.NoError(t, err)
	assert.Equal(t, "VLPLpTn8onHfnD2QpCHU-llSG9hbQUwKIVFr", initial.ID)
	assert.False(t, initial.IsEndless)

	total := len(initial.Entries)
	continuation := initial.Continuation
	for continuation != "" {
		page, err := entry.ExtractListContinuation(ctx, xctx, initial.ID, continuation)
		require.NoError(t, err)
		total += len(page.Entries)
		continuation = page.Continuation
	}
	assert.GreaterOrEqual(t, total, 74)
}

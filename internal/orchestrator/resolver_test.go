package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transcast-org/ytextract/internal/innertube"
)

func TestAllOkOrAgeGate(t *testing.T) {
	ok := &innertube.PlayerResponse{PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"}}
	ageGate := &innertube.PlayerResponse{PlayabilityStatus: innertube.PlayabilityStatus{Status: "LOGIN_REQUIRED"}}
	unplayable := &innertube.PlayerResponse{PlayabilityStatus: innertube.PlayabilityStatus{Status: "UNPLAYABLE"}}

	assert.True(t, allOkOrAgeGate([]*innertube.PlayerResponse{ok, ageGate}))
	assert.False(t, allOkOrAgeGate([]*innertube.PlayerResponse{ok, unplayable}))
	assert.True(t, allOkOrAgeGate(nil))
}

func TestAnyAgeGated(t *testing.T) {
	ok := &innertube.PlayerResponse{PlayabilityStatus: innertube.PlayabilityStatus{Status: "OK"}}
	ageGate := &innertube.PlayerResponse{PlayabilityStatus: innertube.PlayabilityStatus{Status: "LOGIN_REQUIRED"}}

	assert.False(t, anyAgeGated([]*innertube.PlayerResponse{ok}))
	assert.True(t, anyAgeGated([]*innertube.PlayerResponse{ok, ageGate}))
}

func TestAnyLive(t *testing.T) {
	live := &innertube.PlayerResponse{VideoDetails: innertube.VideoDetails{IsLive: true}}
	notLive := &innertube.PlayerResponse{}

	assert.True(t, anyLive([]*innertube.PlayerResponse{notLive, live}))
	assert.False(t, anyLive([]*innertube.PlayerResponse{notLive}))
}

func TestIsEmbeddedClientName(t *testing.T) {
	assert.True(t, isEmbeddedClientName("WEB_EMBEDDED_PLAYER"))
	assert.True(t, isEmbeddedClientName("TV_EMBEDDED"))
	assert.False(t, isEmbeddedClientName("ANDROID"))
}

package playerjs

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/transcast-org/ytextract/internal/innertube"
)

// Sandbox is an isolated JS interpreter instance evaluating exactly one
// SigDefinition's sig/ncode functions. Never shared across concurrent
// decodes — construct one per Player being processed.
type Sandbox struct {
	vm *goja.Runtime
}

// NewSandbox creates an isolated interpreter and evaluates sig_code and
// ncode_code from def.
func NewSandbox(def SigDefinition) (*Sandbox, error) {
	vm := goja.New()
	if _, err := vm.RunString(def.SigCode); err != nil {
		return nil, fmt.Errorf("playerjs: eval sig_code: %w", err)
	}
	if _, err := vm.RunString(def.NcodeCode); err != nil {
		return nil, fmt.Errorf("playerjs: eval ncode_code: %w", err)
	}
	return &Sandbox{vm: vm}, nil
}

func (s *Sandbox) sig(arg string) (string, error) {
	fn, ok := goja.AssertFunction(s.vm.Get("sig"))
	if !ok {
		return "", fmt.Errorf("playerjs: sig is not callable")
	}
	out, err := fn(goja.Undefined(), s.vm.ToValue(arg))
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

func (s *Sandbox) ncode(arg string) (string, error) {
	fn, ok := goja.AssertFunction(s.vm.Get("ncode"))
	if !ok {
		return "", fmt.Errorf("playerjs: ncode is not callable")
	}
	out, err := fn(goja.Undefined(), s.vm.ToValue(arg))
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

// ApplyToStreamingData runs the sandbox over every Format in formats,
// adaptiveFormats, and hlsFormats, mutating format.URL in place per spec §4.6.
// Any interpreter failure aborts and is returned to the caller, who is
// responsible for the non-fatal REYTAN_FAILED_SIGNATURE downgrade (§4.6,
// §7) rather than propagating it as a hard extraction failure.
func (s *Sandbox) ApplyToStreamingData(sd *innertube.StreamingData) error {
	return applyToFormats(sd, s.sig, s.ncode)
}

// DecodeStreamingData applies the sandbox to a Player's streaming data,
// per the non-fatal failure policy: on error, streaming_data is cleared and
// playability_status is downgraded to REYTAN_FAILED_SIGNATURE with a reason
// naming the client and script hash, rather than failing the whole
// extraction (spec §4.6, §7). If the regex-grounded extraction in def never
// found usable functions (the Sandbox itself couldn't be built, or ran but
// left formats unresolved), the teacher's independent token-operation/
// runtime Decipherer is tried against the same bundle before giving up.
func DecodeStreamingData(def SigDefinition, playerJS, clientName, scriptHash string, player *innertube.PlayerResponse) {
	if player.PlayabilityStatus.Status != "OK" {
		return
	}
	sandbox, err := NewSandbox(def)
	if err == nil {
		err = sandbox.ApplyToStreamingData(&player.StreamingData)
	}
	if err != nil && playerJS != "" {
		d := NewDecipherer(playerJS)
		if fallbackErr := applyToFormats(&player.StreamingData, d.DecipherSignature, d.DecipherN); fallbackErr == nil {
			err = nil
		}
	}
	if err != nil {
		player.StreamingData = innertube.StreamingData{}
		player.PlayabilityStatus.Status = innertube.StatusFailedSignature
		player.PlayabilityStatus.Reason = fmt.Sprintf(
			"failed handling signatures (client: %s, player: %s): %s",
			clientName, scriptHash, strings.TrimSpace(err.Error()),
		)
	}
}

package innertube

// PlayabilityCategory classifies a raw PlayabilityStatus.Status string into
// the action the multi-client resolver should take.
type PlayabilityCategory int

const (
	// PlayabilityOk: playable, according to YouTube.
	PlayabilityOk PlayabilityCategory = iota
	// PlayabilityAgeGate: YouTube hates this client; TV_EMBEDDED bypasses it.
	PlayabilityAgeGate
	// PlayabilityNotYet: the video has not been published yet, or a live
	// stream has not started.
	PlayabilityNotYet
	// PlayabilityHostSkillIssue: unplayable globally, or geo-gated.
	PlayabilityHostSkillIssue
	// PlayabilityClientSkillIssue: that's on us (signature/sandbox failure,
	// or JS execution disabled at build time).
	PlayabilityClientSkillIssue
)

// Synthetic statuses reserved for internal use; never returned by YouTube.
const (
	StatusFailedSignature = "REYTAN_FAILED_SIGNATURE"
	StatusNoAllowJS       = "REYTAN_NO_ALLOW_JS"
)

var playabilityStatusType = map[string]PlayabilityCategory{
	"OK": PlayabilityOk,

	// "Sign in to confirm your age. This video may be inappropriate for some users."
	"LOGIN_REQUIRED": PlayabilityAgeGate,

	"LIVE_STREAM_OFFLINE": PlayabilityNotYet,

	// "We're processing this video. Check back later."
	// "The uploader has not made this video available in your country"
	"UNPLAYABLE": PlayabilityHostSkillIssue,

	// "This video is private", copyright claim, account closed, etc.
	"ERROR": PlayabilityHostSkillIssue,

	"CONTENT_CHECK_REQUIRED": PlayabilityClientSkillIssue,
	// [when the user is logged in] "This video may be inappropriate for some users."
	"AGE_CHECK_REQUIRED": PlayabilityClientSkillIssue,

	StatusFailedSignature: PlayabilityClientSkillIssue,
	StatusNoAllowJS:       PlayabilityClientSkillIssue,
}

// ClassifyPlayability maps a raw status string to its category. Unknown
// statuses classify as HostSkillIssue: treat anything YouTube hasn't been
// observed to send as a service-side problem rather than silently accepting it.
func ClassifyPlayability(status string) PlayabilityCategory {
	if cat, ok := playabilityStatusType[status]; ok {
		return cat
	}
	return PlayabilityHostSkillIssue
}

// Category returns the classification of this status.
func (p *PlayabilityStatus) Category() PlayabilityCategory {
	return ClassifyPlayability(p.Status)
}

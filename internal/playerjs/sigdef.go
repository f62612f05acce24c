package playerjs

import (
	"fmt"
	"regexp"
	"strconv"
)

// SigDefinition is the cached, per-script-hash decoder produced by the JS
// Function Extractor: two self-contained JS source fragments declaring
// top-level sig and ncode functions, plus the signature timestamp embedded
// in the bundle (if present).
type SigDefinition struct {
	SigCode   string `json:"sig_code"`
	NcodeCode string `json:"ncode_code"`
	JSSts     *int   `json:"js_sts,omitempty"`
}

// webJSSigFnNameRE is the ordered candidate list for locating the name of the
// signature-descrambling function. The first candidate to match wins.
var webJSSigFnNameRE = []*regexp.Regexp{
	// from yt-dlp
	regexp.MustCompile(`\b[cs]\s*&&\s*[adf]\.set\([^,]+\s*,\s*encodeURIComponent\s*\(\s*(?P<sig>[a-zA-Z0-9$]+)\(`),
	regexp.MustCompile(`\b[a-zA-Z0-9]+\s*&&\s*[a-zA-Z0-9]+\.set\([^,]+\s*,\s*encodeURIComponent\s*\(\s*(?P<sig>[a-zA-Z0-9$]+)\(`),
	regexp.MustCompile(`\bm=(?P<sig>[a-zA-Z0-9$]{2,})\(decodeURIComponent\(h\.s\)\)`),
	regexp.MustCompile(`\bc&&\(c=(?P<sig>[a-zA-Z0-9$]{2,})\(decodeURIComponent\(c\)\)`),
	regexp.MustCompile(`(?:\b|[^a-zA-Z0-9$])(?P<sig>[a-zA-Z0-9$]{2,})\s*=\s*function\(\s*a\s*\)\s*\{\s*a\s*=\s*a\.split\(\s*""\s*\);[a-zA-Z0-9$]{2}\.[a-zA-Z0-9$]{2}\(a,\d+\)`),
	// progressively looser fallbacks
	regexp.MustCompile(`(?:\b|[^a-zA-Z0-9$])(?P<sig>[a-zA-Z0-9$]{2,})\s*=\s*function\(\s*a\s*\)\s*\{\s*a\s*=\s*a\.split\(\s*""\s*\)`),
	regexp.MustCompile(`(?P<sig>[a-zA-Z0-9$]+)\s*=\s*function\(\s*a\s*\)\s*\{\s*a\s*=\s*a\.split\(\s*""\s*\)`),
}

var webJSNcodeFnInitialNameRE = regexp.MustCompile(`&&\(b=a\.get\("n"\)\)&&\(b=(?P<ncvar>[a-zA-Z0-9_$]{2,})(?:\[(?P<index>0)\])?\(b\)`)

var webJSStsRE = regexp.MustCompile(`[{,]['"]?signatureTimestamp['"]?\s*:\s*(\d{5})\s*[},]`)

func namedGroup(re *regexp.Regexp, m []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(m) {
			return m[i]
		}
	}
	return ""
}

// ExtractFunctions runs the JS Function Extractor procedure (spec §4.5)
// against a player bundle's source and assembles a SigDefinition. It does
// not consult or populate the cache; callers gate on script-hash themselves.
func ExtractFunctions(playerJS string) (SigDefinition, error) {
	sigFnName, err := findSigFnName(playerJS)
	if err != nil {
		return SigDefinition{}, err
	}

	sigFnRE, err := regexp.Compile(fmt.Sprintf(
		`(?:function\s+%[1]s|[{;,]\s*%[1]s\s*=\s*function|(?:var|const|let)\s+%[1]s\s*=\s*function)\s*\((?P<args>[^)]*)\)\s*(?P<code>\{\s*a\s*=\s*a\s*\.\s*split\s*\(\s*(?:""|'')\s*\)\s*;\s*(?P<mangler>[a-zA-Z0-9_$]{2})\s*\..+?\})`,
		regexp.QuoteMeta(sigFnName),
	))
	if err != nil {
		return SigDefinition{}, err
	}
	sigMatch := sigFnRE.FindStringSubmatch(playerJS)
	if sigMatch == nil {
		return SigDefinition{}, fmt.Errorf("playerjs: signature function body not found for %q", sigFnName)
	}
	sigFnArgs := namedGroup(sigFnRE, sigMatch, "args")
	sigFnCode := namedGroup(sigFnRE, sigMatch, "code")
	manglerName := namedGroup(sigFnRE, sigMatch, "mangler")

	manglerRE, err := regexp.Compile(fmt.Sprintf(
		`(?s)(?:(?:var|const|let)\s+|[{;,]\s*)%s\s*=\s*(?P<code>\{.+?\}\s*\}\s*);`,
		regexp.QuoteMeta(manglerName),
	))
	if err != nil {
		return SigDefinition{}, err
	}
	manglerMatch := manglerRE.FindStringSubmatch(playerJS)
	if manglerMatch == nil {
		return SigDefinition{}, fmt.Errorf("playerjs: mangler object body not found for %q", manglerName)
	}
	manglerCode := namedGroup(manglerRE, manglerMatch, "code")

	ncodeInitMatch := webJSNcodeFnInitialNameRE.FindStringSubmatch(playerJS)
	if ncodeInitMatch == nil {
		return SigDefinition{}, fmt.Errorf("playerjs: n-code function initial name not found")
	}
	ncvar := namedGroup(webJSNcodeFnInitialNameRE, ncodeInitMatch, "ncvar")
	index := namedGroup(webJSNcodeFnInitialNameRE, ncodeInitMatch, "index")

	ncodeFnName := ncvar
	if index != "" {
		indirectRE, err := regexp.Compile(fmt.Sprintf(
			`(?:(?:var|const|let)\s+|\}\s*;\s*)%s\s*=\s*\[\s*([a-zA-Z0-9_$]{2,})\s*\]\s*;`,
			regexp.QuoteMeta(ncvar),
		))
		if err != nil {
			return SigDefinition{}, err
		}
		m := indirectRE.FindStringSubmatch(playerJS)
		if m == nil {
			return SigDefinition{}, fmt.Errorf("playerjs: n-code indirection array not found for %q", ncvar)
		}
		ncodeFnName = m[1]
	}

	ncodeRE, err := regexp.Compile(fmt.Sprintf(
		`(?s)%s\s*=\s*function\s*\((?P<args>[^)]*)\)(?P<code>\{.+?return\s+b\.join\((?:""|'')\);?\})`,
		regexp.QuoteMeta(ncodeFnName),
	))
	if err != nil {
		return SigDefinition{}, err
	}
	ncodeMatch := ncodeRE.FindStringSubmatch(playerJS)
	if ncodeMatch == nil {
		return SigDefinition{}, fmt.Errorf("playerjs: n-code function body not found for %q", ncodeFnName)
	}
	ncodeArgs := namedGroup(ncodeRE, ncodeMatch, "args")
	ncodeCode := namedGroup(ncodeRE, ncodeMatch, "code")

	def := SigDefinition{
		SigCode:   fmt.Sprintf("const %s=%s; const sig=function(%s)%s;", manglerName, manglerCode, sigFnArgs, sigFnCode),
		NcodeCode: fmt.Sprintf("const ncode=function(%s)%s;", ncodeArgs, ncodeCode),
	}
	if m := webJSStsRE.FindStringSubmatch(playerJS); m != nil {
		if sts, err := strconv.Atoi(m[1]); err == nil {
			def.JSSts = &sts
		}
	}
	return def, nil
}

func findSigFnName(playerJS string) (string, error) {
	for _, re := range webJSSigFnNameRE {
		m := re.FindStringSubmatch(playerJS)
		if m == nil {
			continue
		}
		if name := namedGroup(re, m, "sig"); name != "" {
			return name, nil
		}
	}
	return "", fmt.Errorf("playerjs: signature function name not found by any candidate regex")
}

package playerjs

import (
	"fmt"
	"net/url"

	"github.com/transcast-org/ytextract/internal/innertube"
)

// resolveFormatURL assembles a Format's final playback URL from either its
// plain url or its signature_cipher, deferring the actual signature/n-param
// transforms to sigFn/ncodeFn. Shared by Sandbox (the primary, Rust-grounded
// decoder) and the Decipherer fallback (the teacher's independent
// token-operation/runtime heuristics), which differ only in how sigFn/ncodeFn
// are implemented.
func resolveFormatURL(format *innertube.Format, sigFn, ncodeFn func(string) (string, error)) (string, error) {
	var workingURL *url.URL
	switch {
	case format.URL != "":
		u, err := url.Parse(format.URL)
		if err != nil {
			return "", fmt.Errorf("playerjs: parse format.url: %w", err)
		}
		workingURL = u
	case format.SignatureCipher != "":
		values, err := url.ParseQuery(format.SignatureCipher)
		if err != nil {
			return "", fmt.Errorf("playerjs: parse signature_cipher: %w", err)
		}
		rawURL := values.Get("url")
		if rawURL == "" {
			return "", fmt.Errorf("playerjs: signature_cipher missing url")
		}
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("playerjs: parse signature_cipher url: %w", err)
		}
		if sigRaw := values.Get("s"); sigRaw != "" {
			sigValue, err := sigFn(sigRaw)
			if err != nil {
				return "", fmt.Errorf("playerjs: sig(): %w", err)
			}
			sigParam := values.Get("sp")
			if sigParam == "" {
				sigParam = "signature"
			}
			q := u.Query()
			q.Set(sigParam, sigValue)
			u.RawQuery = q.Encode()
		}
		workingURL = u
	default:
		return "", fmt.Errorf("playerjs: format has neither url nor signature_cipher")
	}

	if n := workingURL.Query().Get("n"); n != "" {
		ncodeValue, err := ncodeFn(n)
		if err != nil {
			return "", fmt.Errorf("playerjs: ncode(): %w", err)
		}
		q := workingURL.Query()
		q.Set("n", ncodeValue)
		workingURL.RawQuery = q.Encode()
	}
	return workingURL.String(), nil
}

// applyToFormats runs sigFn/ncodeFn over every Format in formats,
// adaptiveFormats, and hlsFormats, mutating each format's URL in place.
func applyToFormats(sd *innertube.StreamingData, sigFn, ncodeFn func(string) (string, error)) error {
	lists := [][]innertube.Format{sd.Formats, sd.AdaptiveFormats, sd.HlsFormats}
	for li, list := range lists {
		for i := range list {
			resolved, err := resolveFormatURL(&list[i], sigFn, ncodeFn)
			if err != nil {
				return err
			}
			list[i].URL = resolved
		}
		switch li {
		case 0:
			sd.Formats = list
		case 1:
			sd.AdaptiveFormats = list
		case 2:
			sd.HlsFormats = list
		}
	}
	return nil
}

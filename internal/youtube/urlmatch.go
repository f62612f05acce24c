package youtube

import (
	"fmt"
	"net/url"
	"strings"
)

var mainHosts = map[string]bool{
	"www.youtube.com":  true,
	"m.youtube.com":     true,
	"youtube.com":       true,
	"music.youtube.com": true,
}

var shortHosts = map[string]bool{
	"youtu.be": true,
}

// MatchURL reports whether rawURL is a single-recording YouTube URL: a
// youtu.be short link, or a main-host /watch, /video, or /shorts path.
func MatchURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if shortHosts[u.Host] {
		return true
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return false
	}
	if !mainHosts[u.Host] {
		return false
	}
	switch segments[0] {
	case "watch", "video", "shorts":
		return true
	default:
		return false
	}
}

// VideoID extracts the video ID from a URL already confirmed by MatchURL:
// the `v` query parameter for /watch, the second path segment for
// /video and /shorts, or the whole path for a youtu.be short link.
func VideoID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if shortHosts[u.Host] {
		return strings.Trim(u.Path, "/"), nil
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return "", fmt.Errorf("youtube: no path segments in %q", rawURL)
	}
	if segments[0] == "watch" {
		v := u.Query().Get("v")
		if v == "" {
			return "", fmt.Errorf("youtube: no v= query parameter in %q", rawURL)
		}
		return v, nil
	}
	if len(segments) < 2 {
		return "", fmt.Errorf("youtube: expected a video id segment in %q", rawURL)
	}
	return segments[1], nil
}

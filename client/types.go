package client

// VideoInfo is the package-level metadata result.
type VideoInfo struct {
	ID              string
	Title           string
	Author          string
	Description     string
	DurationSec     int64
	ViewCount       int64
	ChannelID       string
	PublishDate     string
	UploadDate      string
	Category        string
	IsLive          bool
	Keywords        []string
	Formats         []FormatInfo
	DashManifestURL string
	HLSManifestURL  string
}

// FormatInfo is the normalized public format model.
type FormatInfo struct {
	Itag         int
	URL          string
	MimeType     string
	Protocol     string
	HasAudio     bool
	HasVideo     bool
	Bitrate      int
	Width        int
	Height       int
	FPS          int
	Ciphered     bool
	Quality      string
	QualityLabel string
	SourceClient string
}

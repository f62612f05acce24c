package muxer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"

	"github.com/transcast-org/ytextract/internal/types"
)

// Muxer merges a separately-fetched video and audio stream into one
// container, the way the established-format split requires (SPEC_FULL.md
// §4.6): DASH/HLS adaptive formats never carry both tracks together.
type Muxer interface {
	Available() bool
	Merge(ctx context.Context, videoPath, audioPath, outputPath string, meta types.Metadata) error
}

// FFmpegMuxer shells out to the ffmpeg binary to stream-copy (no
// re-encode) a video and audio file into one output container.
type FFmpegMuxer struct {
	Path string
}

// NewFFmpegMuxer returns a new FFmpegMuxer. If path is empty, it looks for
// "ffmpeg" in PATH.
func NewFFmpegMuxer(path string) *FFmpegMuxer {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegMuxer{Path: path}
}

// Available reports whether the configured ffmpeg binary can be found.
func (f *FFmpegMuxer) Available() bool {
	_, err := exec.LookPath(f.Path)
	return err == nil
}

// Merge combines videoPath and audioPath into outputPath, copying both
// streams without re-encoding, then removes the two inputs on success. The
// inputs are left in place on failure so a caller can retry or inspect them.
func (f *FFmpegMuxer) Merge(ctx context.Context, videoPath, audioPath, outputPath string, meta types.Metadata) error {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-c:v", "copy",
		"-c:a", "copy",
	}
	args = append(args, metadataArgs(meta)...)
	args = append(args, "-y", outputPath)

	cmd := exec.CommandContext(ctx, f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Printf("muxer: running %s %v", f.Path, args)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg merge %s+%s -> %s: %w: %s", videoPath, audioPath, outputPath, err, firstLine(stderr.String()))
	}

	if err := os.Remove(videoPath); err != nil {
		log.Printf("muxer: failed to remove merged video input %s: %v", videoPath, err)
	}
	if err := os.Remove(audioPath); err != nil {
		log.Printf("muxer: failed to remove merged audio input %s: %v", audioPath, err)
	}

	return nil
}

func metadataArgs(meta types.Metadata) []string {
	var args []string
	if meta.Title != "" {
		args = append(args, "-metadata", "title="+meta.Title)
	}
	if meta.Artist != "" {
		args = append(args, "-metadata", "artist="+meta.Artist)
	}
	if meta.Date != "" {
		args = append(args, "-metadata", "date="+meta.Date, "-metadata", "creation_time="+meta.Date)
	}
	if meta.Description != "" {
		args = append(args, "-metadata", "comment="+meta.Description)
	}
	return args
}

// firstLine trims an ffmpeg stderr dump down to its last non-empty line,
// which is where ffmpeg puts the actual failure reason.
func firstLine(stderr string) string {
	lines := bytes.Split([]byte(stderr), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		if line := bytes.TrimSpace(lines[i]); len(line) > 0 {
			return string(line)
		}
	}
	return "(no ffmpeg output)"
}

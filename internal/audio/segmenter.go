package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Segment is one planned slice of an episode's audio. Segments are
// contiguous, non-overlapping, and together cover the full duration.
type Segment struct {
	Index    int
	Start    float64
	Duration float64
}

// Plan splits totalSeconds into fixed-length segments of segmentSeconds,
// with a shorter final segment covering the remainder.
func Plan(totalSeconds float64, segmentSeconds int) []Segment {
	if totalSeconds <= 0 || segmentSeconds <= 0 {
		return nil
	}

	var segments []Segment
	step := float64(segmentSeconds)
	for start := 0.0; start < totalSeconds; start += step {
		dur := step
		if start+dur > totalSeconds {
			dur = totalSeconds - start
		}
		segments = append(segments, Segment{Index: len(segments), Start: start, Duration: dur})
	}
	return segments
}

// Segmenter probes and slices audio files by shelling out to ffprobe/ffmpeg.
type Segmenter struct {
	ffmpegBinary  string
	ffprobeBinary string
}

func NewSegmenter(ffmpegBinary, ffprobeBinary string) *Segmenter {
	return &Segmenter{ffmpegBinary: ffmpegBinary, ffprobeBinary: ffprobeBinary}
}

// ProbeDuration returns the total duration of the audio file in seconds.
func (s *Segmenter) ProbeDuration(ctx context.Context, source string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		source,
	}
	cmd := exec.CommandContext(ctx, s.ffprobeBinary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %s", err, strings.TrimSpace(string(output)))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: unparseable output %q", strings.TrimSpace(string(output)))
	}
	return duration, nil
}

// Extract writes the given segment of source to dest using stream copy,
// so no re-encode happens. Boundaries are duration-based, not silence-based;
// a mid-word cut is acceptable for downstream chunking.
func (s *Segmenter) Extract(ctx context.Context, source string, seg Segment, dest string) error {
	if seg.Duration <= 0 {
		return fmt.Errorf("extract segment: invalid duration %f", seg.Duration)
	}
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", seg.Start),
		"-t", fmt.Sprintf("%.3f", seg.Duration),
		"-i", source,
		"-acodec", "copy",
		dest,
	}
	cmd := exec.CommandContext(ctx, s.ffmpegBinary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract segment: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

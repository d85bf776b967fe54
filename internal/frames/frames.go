// Package frames probes video artifacts and extracts still images from them
// with ffprobe and ffmpeg.
package frames

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Metadata describes the source video.
type Metadata struct {
	Duration float64 `json:"duration"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Codec    string  `json:"codec"`
}

// Frame is one encoded still.
type Frame struct {
	Timestamp float64
	JPEG      []byte
}

// Extractor is the frame-extraction boundary.
type Extractor interface {
	Probe(ctx context.Context, path string) (*Metadata, error)
	Extract(ctx context.Context, path string, timestamps []float64) ([]Frame, error)
}

// FFmpeg implements Extractor with the ffmpeg and ffprobe binaries.
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	// MaxWidth downscales wider frames, keeping the aspect ratio. Zero keeps
	// the source width.
	MaxWidth int
}

// New creates an extractor. Empty paths resolve from PATH.
func New(ffmpegPath, ffprobePath string, maxWidth int) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, MaxWidth: maxWidth}
}

// Probe reads duration and video stream properties.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, f.FFprobePath, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", path)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return ParseProbe(output)
}

// ParseProbe decodes ffprobe's JSON output.
func ParseProbe(output []byte) (*Metadata, error) {
	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			CodecName  string `json:"codec_name"`
			Width      int    `json:"width"`
			Height     int    `json:"height"`
			RFrameRate string `json:"r_frame_rate"`
			Duration   string `json:"duration"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	md := &Metadata{}
	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			md.Duration = d
		}
	}

	found := false
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" || found {
			continue
		}
		found = true
		md.Width = stream.Width
		md.Height = stream.Height
		md.Codec = stream.CodecName
		md.FPS = parseRate(stream.RFrameRate)
		if md.Duration == 0 && stream.Duration != "" {
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				md.Duration = d
			}
		}
	}
	if !found {
		return nil, fmt.Errorf("no video stream")
	}
	return md, nil
}

func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d <= 0 {
		return 0
	}
	return n / d
}

// Extract returns one JPEG per timestamp, in order. Extraction is sequential
// and stops at the first failure or when ctx is done.
func (f *FFmpeg) Extract(ctx context.Context, path string, timestamps []float64) ([]Frame, error) {
	out := make([]Frame, 0, len(timestamps))
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := f.extractOne(ctx, path, ts)
		if err != nil {
			return nil, err
		}
		out = append(out, Frame{Timestamp: ts, JPEG: img})
	}
	return out, nil
}

func (f *FFmpeg) extractOne(ctx context.Context, path string, ts float64) ([]byte, error) {
	cmd := exec.CommandContext(ctx, f.FFmpegPath, f.extractArgs(path, ts)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract frame at %.3fs: %w: %s", ts, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("extract frame at %.3fs: no image produced", ts)
	}
	return stdout.Bytes(), nil
}

func (f *FFmpeg) extractArgs(path string, ts float64) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(ts, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
	}
	if f.MaxWidth > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale='min(%d,iw)':-2", f.MaxWidth))
	}
	return append(args, "-q:v", "3", "-f", "image2pipe", "-vcodec", "mjpeg", "pipe:1")
}

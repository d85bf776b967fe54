package frames

import (
	"context"
	"strings"
	"testing"
)

func TestParseProbe(t *testing.T) {
	output := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"}
		],
		"format": {"duration": "12.480000"}
	}`)

	md, err := ParseProbe(output)
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}
	if md.Duration != 12.48 {
		t.Errorf("Duration = %v, want 12.48", md.Duration)
	}
	if md.Width != 1920 || md.Height != 1080 {
		t.Errorf("size = %dx%d, want 1920x1080", md.Width, md.Height)
	}
	if md.Codec != "h264" {
		t.Errorf("Codec = %q, want h264", md.Codec)
	}
	if md.FPS < 29.96 || md.FPS > 29.98 {
		t.Errorf("FPS = %v, want ~29.97", md.FPS)
	}
}

func TestParseProbe_StreamDurationFallback(t *testing.T) {
	md, err := ParseProbe([]byte(`{"streams":[{"codec_type":"video","duration":"3.5","r_frame_rate":"25"}],"format":{}}`))
	if err != nil {
		t.Fatalf("ParseProbe() error = %v", err)
	}
	if md.Duration != 3.5 || md.FPS != 25 {
		t.Fatalf("ParseProbe() = %+v", md)
	}
}

func TestParseProbe_Errors(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"invalid json", `{`},
		{"audio only", `{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseProbe([]byte(tt.output)); err == nil {
				t.Fatalf("ParseProbe() expected error")
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]float64{
		"30/1":  30,
		"24":    24,
		"0/0":   0,
		"bogus": 0,
	}
	for in, want := range tests {
		if got := parseRate(in); got != want {
			t.Errorf("parseRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractArgs(t *testing.T) {
	f := New("", "", 1280)
	got := strings.Join(f.extractArgs("/tmp/a.mp4", 1.25), " ")
	want := "-hide_banner -loglevel error -ss 1.250 -i /tmp/a.mp4 -frames:v 1 -vf scale='min(1280,iw)':-2 -q:v 3 -f image2pipe -vcodec mjpeg pipe:1"
	if got != want {
		t.Fatalf("extractArgs() =\n%s\nwant\n%s", got, want)
	}
	if strings.Contains(strings.Join(New("", "", 0).extractArgs("a", 0), " "), "-vf") {
		t.Fatalf("extractArgs() with MaxWidth 0 should not scale")
	}
}

func TestExtract_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New("", "", 0).Extract(ctx, "/nonexistent.mp4", []float64{0}); err == nil {
		t.Fatalf("Extract() expected error for cancelled context")
	}
}

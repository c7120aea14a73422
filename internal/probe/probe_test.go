package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madkins23/galasort/internal/media"
)

const phoneClip = `{
  "streams": [
    {"codec_type": "audio", "sample_rate": "48000"},
    {
      "codec_type": "video", "width": 1920, "height": 1080,
      "tags": {"rotate": "90", "creation_time": "2023-07-01T08:00:00.000000Z"},
      "side_data_list": [{"side_data_type": "Display Matrix", "rotation": -90}]
    }
  ],
  "format": {
    "duration": "12.500000",
    "tags": {"creation_time": "2024-01-01T12:00:00.000000Z"}
  }
}`

func TestParseFFProbe(t *testing.T) {
	info, err := parseFFProbe([]byte(phoneClip))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Fatalf("dimensions: %dx%d", info.Width, info.Height)
	}
	if info.RotateTag == nil || *info.RotateTag != 90 {
		t.Fatalf("rotate tag: %v", info.RotateTag)
	}
	if info.SideDataRotation == nil || *info.SideDataRotation != -90 {
		t.Fatalf("side data rotation: %v", info.SideDataRotation)
	}
	if info.CreationTime != "2024-01-01T12:00:00.000000Z" {
		t.Fatalf("format creation time should win: %q", info.CreationTime)
	}
	if info.Duration != 12500*time.Millisecond {
		t.Fatalf("duration: %v", info.Duration)
	}
	if got := media.ClassifyOrientation(info); got != media.Portrait {
		t.Fatalf("orientation: %v", got)
	}
}

func TestParseFFProbe_StreamCreationTimeFallback(t *testing.T) {
	info, err := parseFFProbe([]byte(`{"streams":[{"codec_type":"video","width":640,"height":480,
		"tags":{"creation_time":"2022-02-02T02:02:02Z"}}],"format":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.CreationTime != "2022-02-02T02:02:02Z" {
		t.Fatalf("creation time: %q", info.CreationTime)
	}
	if info.RotateTag != nil || info.SideDataRotation != nil {
		t.Fatalf("no rotation expected: %+v", info)
	}
}

func TestParseFFProbe_Errors(t *testing.T) {
	for name, raw := range map[string]string{
		"garbage":    `not json`,
		"no video":   `{"streams":[{"codec_type":"audio"}]}`,
		"bad rotate": `{"streams":[{"codec_type":"video","width":1,"height":1,"tags":{"rotate":"sideways"}}]}`,
	} {
		if _, err := parseFFProbe([]byte(raw)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFFProbe_MissingExecutable(t *testing.T) {
	p := FFProbe{Path: filepath.Join(t.TempDir(), "no-such-ffprobe")}
	if p.Available() {
		t.Fatalf("executable should not be available")
	}
	_, err := p.Probe(context.Background(), "clip.mp4")
	if !IsProbeFailure(err) {
		t.Fatalf("expected probe failure, got %T %v", err, err)
	}
}

func TestMatrixRotation(t *testing.T) {
	const one = 0x10000
	cases := []struct {
		matrix [9]int32
		want   int
	}{
		{[9]int32{one, 0, 0, 0, one, 0, 0, 0, 0x40000000}, 0},
		{[9]int32{0, one, 0, -one, 0, 0, 0, 0, 0x40000000}, 90},
		{[9]int32{-one, 0, 0, 0, -one, 0, 0, 0, 0x40000000}, 180},
		{[9]int32{0, -one, 0, one, 0, 0, 0, 0, 0x40000000}, -90},
		{[9]int32{}, 0},
	}
	for _, c := range cases {
		if got := matrixRotation(c.matrix); got != c.want {
			t.Errorf("matrixRotation(%v) = %d, want %d", c.matrix, got, c.want)
		}
	}
}

func TestMP4_NotAContainer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.mp4")
	if err := os.WriteFile(path, []byte("definitely not an mp4"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := MP4{}.Probe(context.Background(), path)
	if !IsProbeFailure(err) {
		t.Fatalf("expected probe failure, got %v", err)
	}
	if _, _, err := ReadMovieHeader(path); err == nil {
		t.Fatalf("expected movie header error")
	}
}

type fakeProber struct {
	info  *media.Info
	err   error
	calls *int
}

func (f fakeProber) Probe(context.Context, string) (*media.Info, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.info, f.err
}

func TestChain(t *testing.T) {
	var second int
	first := fakeProber{err: &Error{Tool: "one", Path: "x", Err: errors.New("nope")}}
	want := &media.Info{Width: 10, Height: 20}

	info, err := Chain{first, fakeProber{info: want, calls: &second}}.Probe(context.Background(), "x")
	if err != nil || info != want || second != 1 {
		t.Fatalf("got %v %v calls=%d", info, err, second)
	}

	_, err = Chain{first, first}.Probe(context.Background(), "x")
	if !IsProbeFailure(err) {
		t.Fatalf("expected joined probe failure, got %v", err)
	}

	if _, err = (Chain{}).Probe(context.Background(), "x"); !IsProbeFailure(err) {
		t.Fatalf("empty chain should fail as a probe failure: %v", err)
	}
}

func TestMemo_SharesOneProbePerPath(t *testing.T) {
	var calls int
	m := NewMemo(fakeProber{info: &media.Info{Width: 1, Height: 2}, calls: &calls})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := m.Probe(ctx, "a.mp4"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one probe for a.mp4, got %d", calls)
	}
	if _, err := m.Probe(ctx, "b.mp4"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected a new probe for b.mp4, got %d", calls)
	}
}

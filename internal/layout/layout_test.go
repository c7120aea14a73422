package layout

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/madkins23/galasort/internal/media"
)

var roots = Roots{
	Photo: filepath.Join("/archive", "Photography"),
	Video: filepath.Join("/archive", "Videos", "Raw Videos"),
}

func flyer() Descriptor {
	return Descriptor{
		LocoName:    "Flyer",
		LocoNumber:  "4472",
		Location:    "York",
		Year:        2024,
		Month:       1,
		Day:         1,
		Orientation: media.Landscape,
		IsPhoto:     true,
	}
}

func TestBuildDestinationDir_Photo(t *testing.T) {
	got := BuildDestinationDir(roots, flyer())
	want := filepath.Join(roots.Photo, "Flyer4472", "RawStills", "2024-01-01_York")
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestBuildDestinationDir_Video(t *testing.T) {
	d := flyer()
	d.IsPhoto = false
	d.LocoName = "Flying Scotsman "
	d.Location = "North Yorkshire Moors"
	d.Month, d.Day = 10, 7

	want := filepath.Join(roots.Video, "FlyingScotsman4472", "RawFootage", "Landscape", "2024-10-07_NorthYorkshireMoors")
	if got := BuildDestinationDir(roots, d); got != want {
		t.Fatalf("landscape: got %q, want %q", got, want)
	}

	d.Orientation = media.Portrait
	want = filepath.Join(roots.Video, "FlyingScotsman4472", "RawFootage", "Shorts", "2024-10-07_NorthYorkshireMoors")
	if got := BuildDestinationDir(roots, d); got != want {
		t.Fatalf("portrait: got %q, want %q", got, want)
	}

	for _, o := range []media.Orientation{media.Square, media.OrientationUnknown} {
		d.Orientation = o
		if got := BuildDestinationDir(roots, d); !strings.Contains(got, "Landscape") {
			t.Fatalf("%v should land in Landscape: %q", o, got)
		}
	}
}

func TestBuildDestinationDir_Pure(t *testing.T) {
	d := flyer()
	first := BuildDestinationDir(roots, d)
	for i := 0; i < 5; i++ {
		if got := BuildDestinationDir(roots, d); got != first {
			t.Fatalf("call %d: %q != %q", i, got, first)
		}
	}
	d.IsPhoto = false
	if got := BuildDestinationDir(roots, d); !strings.HasPrefix(got, roots.Video) || strings.Contains(got, "RawStills") {
		t.Fatalf("video path should use the video subtree: %q", got)
	}
}

func TestBuildDestinationDir_EmptyFieldsAreDegenerate(t *testing.T) {
	d := Descriptor{IsPhoto: true}
	want := filepath.Join(roots.Photo, "", "RawStills", "0000-00-00_")
	if got := BuildDestinationDir(roots, d); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if problems := d.Problems(); len(problems) != 3 {
		t.Fatalf("expected three problems, got %v", problems)
	}
	if problems := flyer().Problems(); len(problems) != 0 {
		t.Fatalf("expected no problems, got %v", problems)
	}
}

func TestBuildFileName(t *testing.T) {
	cases := []struct {
		number, location, description, ext string
		want                               string
	}{
		{"4472", "York", "Gala", ".jpg", "4472-2024-York-Gala.jpg"},
		{"4472", "York", "", ".mp4", "4472-2024-York-Clip.mp4"},
		{"4472", "Grosmont Shed", "Night  run", ".MOV", "4472-2024-GrosmontShed-Nightrun.MOV"},
		{"4472", "York", "   ", ".mp4", "4472-2024-York-Clip.mp4"},
	}
	for _, c := range cases {
		if got := BuildFileName(c.number, 2024, c.location, c.description, c.ext); got != c.want {
			t.Errorf("got %q, want %q", got, c.want)
		}
	}
}

func TestBuildProjectDir(t *testing.T) {
	when := time.Date(2025, 3, 9, 10, 0, 0, 0, time.Local)
	cases := []struct {
		o       media.Orientation
		isPhoto bool
		want    string
	}{
		{media.Landscape, false, filepath.Join(roots.Video, "2025", "Gala", "YouTube")},
		{media.Square, false, filepath.Join(roots.Video, "2025", "Gala", "YouTube")},
		{media.Portrait, false, filepath.Join(roots.Video, "2025", "Gala", "Shorts")},
		{media.OrientationUnknown, true, filepath.Join(roots.Photo, "2025", "03", "Gala")},
	}
	for _, c := range cases {
		if got := BuildProjectDir(roots, "Gala", when, c.o, c.isPhoto); got != c.want {
			t.Errorf("%v/%v: got %q, want %q", c.o, c.isPhoto, got, c.want)
		}
	}
}

func TestResolveCollision_StrictlyIncreasing(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := filepath.Join("/archive", "dest")
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	wants := []string{
		"4472-2024-York-Gala.jpg",
		"4472-2024-York-Gala_1.jpg",
		"4472-2024-York-Gala_2.jpg",
		"4472-2024-York-Gala_3.jpg",
	}
	for _, want := range wants {
		got, err := ResolveCollision(fs, dir, "4472-2024-York-Gala.jpg")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != filepath.Join(dir, want) {
			t.Fatalf("got %q, want %q", got, want)
		}
		// Asking again without creating the file returns the same name.
		again, _ := ResolveCollision(fs, dir, "4472-2024-York-Gala.jpg")
		if again != got {
			t.Fatalf("not idempotent: %q then %q", got, again)
		}
		if err := afero.WriteFile(fs, got, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestResolveCollision_FillsGapsFromOne(t *testing.T) {
	fs := afero.NewMemMapFs()
	dir := "/d"
	for _, name := range []string{"a.mp4", "a_2.mp4"} {
		if err := afero.WriteFile(fs, filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	got, err := ResolveCollision(fs, dir, "a.mp4")
	if err != nil || got != filepath.Join(dir, "a_1.mp4") {
		t.Fatalf("got %q %v", got, err)
	}

	got, err = ResolveCollision(fs, dir, "noext")
	if err != nil || got != filepath.Join(dir, "noext") {
		t.Fatalf("got %q %v", got, err)
	}
}

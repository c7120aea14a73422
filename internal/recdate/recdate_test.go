package recdate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/madkins23/galasort/internal/media"
)

type fakeProber struct {
	info *media.Info
	err  error
}

func (f fakeProber) Probe(context.Context, string) (*media.Info, error) { return f.info, f.err }

type fixedStrategy struct {
	name   string
	source Source
	when   time.Time
	err    error
	calls  *int
}

func (f fixedStrategy) Name() string   { return f.name }
func (f fixedStrategy) Source() Source { return f.source }
func (f fixedStrategy) Lookup(context.Context, media.File) (time.Time, error) {
	if f.calls != nil {
		*f.calls++
	}
	return f.when, f.err
}

func writeFile(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte("not really media"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %s: %v", path, err)
	}
}

func TestResolver_FirstSuccessWins(t *testing.T) {
	var later int
	when := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := &Resolver{Strategies: []Strategy{
		fixedStrategy{name: "absent", err: ErrNoDate},
		fixedStrategy{name: "broken", err: errors.New("corrupt")},
		fixedStrategy{name: "exif", source: Metadata, when: when},
		fixedStrategy{name: "never", source: ModifiedDate, when: time.Now(), calls: &later},
	}}
	got, err := r.Resolve(context.Background(), media.File{Path: "a.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Year != 2024 || got.Month != 1 || got.Day != 1 {
		t.Fatalf("date: %v", got)
	}
	if got.Source != Metadata || got.Strategy != "exif" || !got.Locked() {
		t.Fatalf("source: %+v", got)
	}
	if later != 0 {
		t.Fatalf("strategies after the winner must not run")
	}
}

func TestResolver_AllFail(t *testing.T) {
	r := &Resolver{Strategies: []Strategy{fixedStrategy{name: "absent", err: ErrNoDate}}}
	_, err := r.Resolve(context.Background(), media.File{Path: "a.jpg"})
	if !errors.Is(err, ErrNoDate) {
		t.Fatalf("expected ErrNoDate, got %v", err)
	}

	boom := errors.New("boom")
	r = &Resolver{Strategies: []Strategy{fixedStrategy{name: "broken", err: boom}}}
	_, err = r.Resolve(context.Background(), media.File{Path: "a.jpg"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestResolver_PhotoWithoutEXIFFallsBackToModTime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IMG_0001.jpg")
	mtime := time.Date(2023, 5, 6, 12, 0, 0, 0, time.Local)
	writeFile(t, path, mtime)

	got, err := NewResolver(nil).Resolve(context.Background(), media.Classify(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Source != ModifiedDate || got.Strategy != "modified" || got.Locked() {
		t.Fatalf("source: %+v", got)
	}
	if got.Year != 2023 || got.Month != 5 || got.Day != 6 {
		t.Fatalf("date: %v", got)
	}
}

func TestResolver_VideoContainerTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mkv")
	writeFile(t, path, time.Date(2020, 2, 2, 12, 0, 0, 0, time.Local))

	tag := "2024-03-04T12:00:00.000000Z"
	want, _ := time.Parse(time.RFC3339Nano, tag)
	want = want.Local()

	prober := fakeProber{info: &media.Info{Width: 1, Height: 1, CreationTime: tag}}
	got, err := NewResolver(prober).Resolve(context.Background(), media.Classify(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Source != Metadata || got.Strategy != "container-tag" {
		t.Fatalf("source: %+v", got)
	}
	if got.Year != want.Year() || got.Month != int(want.Month()) || got.Day != want.Day() {
		t.Fatalf("date: %v, want %v", got, want)
	}
}

func TestResolver_VideoProbeFailureFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.mp4")
	writeFile(t, path, time.Date(2021, 9, 10, 12, 0, 0, 0, time.Local))

	got, err := NewResolver(fakeProber{err: errors.New("ffprobe missing")}).
		Resolve(context.Background(), media.Classify(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Source != ModifiedDate || got.String() != "2021-09-10" {
		t.Fatalf("got %+v", got)
	}
}

func TestContainerTag_BadTimestamp(t *testing.T) {
	c := ContainerTag{Prober: fakeProber{info: &media.Info{CreationTime: "yesterday"}}}
	if _, err := c.Lookup(context.Background(), media.File{Path: "a.mp4", Category: media.Video}); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := c.Lookup(context.Background(), media.File{Path: "a.jpg", Category: media.Photo}); !errors.Is(err, ErrNoDate) {
		t.Fatalf("photos are not probed: %v", err)
	}
}

func TestParseEXIFDate(t *testing.T) {
	got, err := parseEXIFDate("2024:01:01 12:00:00\x00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) {
		t.Fatalf("got %v", got)
	}
	if _, err := parseEXIFDate("2024-01-01T12:00:00"); err == nil {
		t.Fatalf("expected error for ISO layout")
	}
}

func TestOverride(t *testing.T) {
	meta := RecordedDate{Year: 2024, Month: 1, Day: 1, Source: Metadata}
	if _, err := Override(meta, 2020, 0, 0); !errors.Is(err, ErrDateLocked) {
		t.Fatalf("metadata dates are locked: %v", err)
	}

	mod := RecordedDate{Year: 2024, Month: 1, Day: 1, Source: ModifiedDate}
	got, err := Override(mod, 0, 0, 0)
	if err != nil || got != mod {
		t.Fatalf("no-op override changed the date: %+v %v", got, err)
	}

	got, err = Override(mod, 2019, 7, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "2019-07-01" || got.Source != Manual {
		t.Fatalf("got %+v", got)
	}

	if _, err := Override(mod, 2023, 2, 30); err == nil {
		t.Fatalf("expected invalid date error")
	}
}

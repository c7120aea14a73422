package recdate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/djherbis/times"
	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	goexif "github.com/rwcarlsen/goexif/exif"
	"github.com/rs/zerolog/log"

	"github.com/madkins23/galasort/internal/media"
	"github.com/madkins23/galasort/internal/probe"
)

const (
	exifDateLayout          = "2006:01:02 15:04:05"
	tagIDDateTimeOriginal   = 0x9003
	tagNameDateTimeOriginal = "DateTimeOriginal"
)

var localTimeZone = time.Now().Location()

// ContainerTag reads the creation_time tag reported by the prober.
type ContainerTag struct {
	Prober media.Prober
}

func (ContainerTag) Name() string   { return "container-tag" }
func (ContainerTag) Source() Source { return Metadata }

func (c ContainerTag) Lookup(ctx context.Context, file media.File) (time.Time, error) {
	if !file.IsVideo() || c.Prober == nil {
		return time.Time{}, ErrNoDate
	}
	info, err := c.Prober.Probe(ctx, file.Path)
	if err != nil {
		return time.Time{}, err
	}
	if info.CreationTime == "" {
		return time.Time{}, ErrNoDate
	}
	when, err := time.Parse(time.RFC3339Nano, info.CreationTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse creation time %q: %w", info.CreationTime, err)
	}
	// Cameras record UTC; the archive is organized by local day.
	return when.In(localTimeZone), nil
}

// MovieHeader reads moov/mvhd directly from ISO-BMFF containers.
type MovieHeader struct{}

func (MovieHeader) Name() string   { return "movie-header" }
func (MovieHeader) Source() Source { return Metadata }

func (MovieHeader) Lookup(_ context.Context, file media.File) (time.Time, error) {
	switch file.Ext {
	case ".mp4", ".mov", ".m4v", ".3gp":
	default:
		return time.Time{}, ErrNoDate
	}
	when, _, err := probe.ReadMovieHeader(file.Path)
	if err != nil {
		return time.Time{}, err
	}
	return when.In(localTimeZone), nil
}

// EXIFOriginal reads DateTimeOriginal through a full EXIF tag index.
type EXIFOriginal struct{}

func (EXIFOriginal) Name() string   { return "exif-original" }
func (EXIFOriginal) Source() Source { return Metadata }

func (EXIFOriginal) Lookup(_ context.Context, file media.File) (time.Time, error) {
	if !file.IsPhoto() {
		return time.Time{}, ErrNoDate
	}
	index, err := EXIFgetIndex(file.Path)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return time.Time{}, ErrNoDate
		}
		return time.Time{}, err
	}
	value, err := EXIFgetValue(index, tagNameDateTimeOriginal, tagIDDateTimeOriginal)
	if err != nil {
		return time.Time{}, err
	}
	whenStr, ok := value.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("%s not string: %T", tagNameDateTimeOriginal, value)
	}
	return parseEXIFDate(whenStr)
}

// EXIFDecode is a second EXIF reader for files the tag index cannot handle.
type EXIFDecode struct{}

func (EXIFDecode) Name() string   { return "exif-decode" }
func (EXIFDecode) Source() Source { return Metadata }

func (EXIFDecode) Lookup(_ context.Context, file media.File) (time.Time, error) {
	if !file.IsPhoto() {
		return time.Time{}, ErrNoDate
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return time.Time{}, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	x, err := goexif.Decode(f)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: decode EXIF: %v", ErrNoDate, err)
	}
	tag, err := x.Get(goexif.DateTimeOriginal)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNoDate, err)
	}
	whenStr, err := tag.StringVal()
	if err != nil {
		return time.Time{}, fmt.Errorf("%s value: %w", tagNameDateTimeOriginal, err)
	}
	return parseEXIFDate(whenStr)
}

// ModTime is the last resort and applies to every file.
type ModTime struct{}

func (ModTime) Name() string   { return "modified" }
func (ModTime) Source() Source { return ModifiedDate }

func (ModTime) Lookup(_ context.Context, file media.File) (time.Time, error) {
	ts, err := times.Stat(file.Path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat file: %w", err)
	}
	return ts.ModTime().In(localTimeZone), nil
}

// parseEXIFDate parses YYYY:MM:DD HH:MM:SS. There is no zone in the string so the
// result is UTC, which keeps the wall clock values as written by the camera.
func parseEXIFDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	when, err := time.Parse(exifDateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return when, nil
}

func EXIFgetIndex(path string) (exif.IfdIndex, error) {
	var index exif.IfdIndex
	if rawExif, err := exif.SearchFileAndExtractExif(path); err != nil {
		return index, fmt.Errorf("getting EXIF from file: %w", err)
	} else if im, err := exifcommon.NewIfdMappingWithStandard(); err != nil {
		return index, fmt.Errorf("getting EXIF mapping: %w", err)
	} else {
		ti := exif.NewTagIndex()
		if _, index, err = exif.Collect(im, ti, rawExif); err != nil {
			return index, fmt.Errorf("getting EXIF index: %w", err)
		}
		return index, nil
	}
}

// EXIFgetValue looks in the root IFD first and then in the Exif sub-IFD.
func EXIFgetValue(index exif.IfdIndex, tagName string, tagID uint16) (interface{}, error) {
	if index.RootIfd == nil {
		return nil, fmt.Errorf("%w: empty EXIF index", ErrNoDate)
	}
	tagResults, err := index.RootIfd.FindTagWithId(tagID)
	if err != nil {
		if exifIfd := index.Lookup["IFD/Exif"]; exifIfd != nil {
			tagResults, err = exifIfd.FindTagWithId(tagID)
		}
	}
	if err != nil {
		log.Debug().Err(err).Str("tag", tagName).
			Str("ID", "0x"+strconv.FormatUint(uint64(tagID), 16)).Msg("Find EXIF tag by ID")
		return nil, fmt.Errorf("%w: find EXIF tag %s: %v", ErrNoDate, tagName, err)
	}
	if len(tagResults) != 1 {
		return nil, fmt.Errorf("wrong number of EXIF tag results: %d", len(tagResults))
	} else if value, err := tagResults[0].Value(); err != nil {
		return nil, fmt.Errorf("getting EXIF tag value: %w", err)
	} else {
		return value, nil
	}
}

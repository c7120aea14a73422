// Package layout derives archive directories and file names from operator labels.
//
// Directory and file names are pure functions of their inputs. Only ResolveCollision
// looks at the filesystem, and it does so on every call.
package layout

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/madkins23/galasort/internal/media"
)

const (
	DefaultDescription = "Clip"

	stillsDir    = "RawStills"
	footageDir   = "RawFootage"
	shortsDir    = "Shorts"
	landscapeDir = "Landscape"
	youtubeDir   = "YouTube"
)

// Roots are the top level archive folders for each category.
type Roots struct {
	Photo string
	Video string
}

// Descriptor holds everything that decides a destination directory.
type Descriptor struct {
	LocoName    string
	LocoNumber  string
	Location    string
	Year        int
	Month       int
	Day         int
	Orientation media.Orientation
	IsPhoto     bool
}

// Problems lists empty labels. They are not rejected: empty labels produce
// degenerate path segments, and the caller decides whether to warn.
func (d Descriptor) Problems() []string {
	var problems []string
	if strings.TrimSpace(d.LocoName) == "" && strings.TrimSpace(d.LocoNumber) == "" {
		problems = append(problems, "loco name and number are empty")
	}
	if strings.TrimSpace(d.Location) == "" {
		problems = append(problems, "location is empty")
	}
	if d.Year == 0 || d.Month == 0 || d.Day == 0 {
		problems = append(problems, "date is incomplete")
	}
	return problems
}

// Loco is the loco folder segment: name and number joined without spaces.
func (d Descriptor) Loco() string {
	return stripSpaces(d.LocoName + d.LocoNumber)
}

// BuildDestinationDir maps a descriptor to its archive directory:
//
//	photo: <Photo>/<loco>/RawStills/<YYYY-MM-DD>_<location>
//	video: <Video>/<loco>/RawFootage/<Shorts|Landscape>/<YYYY-MM-DD>_<location>
func BuildDestinationDir(roots Roots, d Descriptor) string {
	leaf := fmt.Sprintf("%04d-%02d-%02d_%s", d.Year, d.Month, d.Day, stripSpaces(d.Location))
	if d.IsPhoto {
		return filepath.Join(roots.Photo, d.Loco(), stillsDir, leaf)
	}
	return filepath.Join(roots.Video, d.Loco(), footageDir, OrientationBucket(d.Orientation), leaf)
}

// OrientationBucket is Shorts for portrait footage and Landscape for everything else.
func OrientationBucket(o media.Orientation) string {
	if o == media.Portrait {
		return shortsDir
	}
	return landscapeDir
}

// BuildFileName returns <locoNumber>-<year>-<location>-<description><ext>.
func BuildFileName(locoNumber string, year int, location, description, ext string) string {
	description = stripSpaces(description)
	if description == "" {
		description = DefaultDescription
	}
	return locoNumber + "-" + strconv.Itoa(year) + "-" + stripSpaces(location) + "-" + description + ext
}

// BuildProjectDir is the project layout of the first sorter:
//
//	photo: <Photo>/<YYYY>/<MM>/<project>
//	video: <Video>/<YYYY>/<project>/<Shorts|YouTube>
func BuildProjectDir(roots Roots, project string, when time.Time, o media.Orientation, isPhoto bool) string {
	year := strconv.Itoa(when.Year())
	if isPhoto {
		return filepath.Join(roots.Photo, year, fmt.Sprintf("%02d", int(when.Month())), project)
	}
	bucket := youtubeDir
	if o == media.Portrait {
		bucket = shortsDir
	}
	return filepath.Join(roots.Video, year, project, bucket)
}

// ResolveCollision returns dir/base if nothing is there, otherwise the first free
// dir/<stem>_N<ext> for N = 1, 2, ... Existence is checked live for every candidate.
func ResolveCollision(fs afero.Fs, dir, base string) (string, error) {
	candidate := filepath.Join(dir, base)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("stat candidate %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(dir, stem+"_"+strconv.Itoa(n)+ext)
	}
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

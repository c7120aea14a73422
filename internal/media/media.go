// Package media classifies inbox files by category and videos by orientation.
package media

import (
	"path/filepath"
	"strings"
	"time"
)

type Category int

const (
	Unknown Category = iota
	Video
	Photo
)

func (c Category) String() string {
	switch c {
	case Video:
		return "video"
	case Photo:
		return "photo"
	default:
		return "unknown"
	}
}

var (
	DefaultVideoExtensions = []string{".mp4", ".mov", ".m4v", ".avi", ".mkv"}
	DefaultPhotoExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".heic"}
)

// File is a single inbox entry.
type File struct {
	Path     string
	Ext      string // lower case, with leading dot
	Category Category
}

func (f File) IsPhoto() bool { return f.Category == Photo }
func (f File) IsVideo() bool { return f.Category == Video }

// Classifier maps extensions to categories.
type Classifier struct {
	video map[string]bool
	photo map[string]bool
}

// NewClassifier builds a classifier from extension lists.
// Extensions are matched case-insensitively and may be given with or without the dot.
func NewClassifier(videoExts, photoExts []string) *Classifier {
	return &Classifier{
		video: extensionSet(videoExts),
		photo: extensionSet(photoExts),
	}
}

// DefaultClassifier recognizes the extensions handled by the original tool.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultVideoExtensions, DefaultPhotoExtensions)
}

func (c *Classifier) Classify(path string) File {
	ext := strings.ToLower(filepath.Ext(path))
	f := File{Path: path, Ext: ext}
	switch {
	case c.video[ext]:
		f.Category = Video
	case c.photo[ext]:
		f.Category = Photo
	}
	return f
}

// Classify uses the default extension lists.
func Classify(path string) File {
	return DefaultClassifier().Classify(path)
}

func extensionSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

// Info is what a prober could learn about a media container.
// Rotation values are in degrees; nil means the container did not carry one.
type Info struct {
	Width            int
	Height           int
	RotateTag        *int
	SideDataRotation *int
	CreationTime     string // raw container tag, usually ISO-8601
	Duration         time.Duration
}

// Rotation returns the effective rotation, side data taking precedence over the tag.
func (i *Info) Rotation() int {
	switch {
	case i.SideDataRotation != nil:
		return *i.SideDataRotation
	case i.RotateTag != nil:
		return *i.RotateTag
	default:
		return 0
	}
}

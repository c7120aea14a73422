// Package config merges the optional YAML config file with command line flags.
//
// Precedence: a flag set on the command line, then the config file, then defaults.
// The archive root defaults to the drive holding the inbox; on systems without
// drive letters it has to be given with -archive or archive_root.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/madkins23/galasort/internal/media"
	"github.com/madkins23/galasort/internal/prefs"
)

const (
	ErrCodeNotFound       = "config_not_found"
	ErrCodeInvalid        = "config_invalid"
	ErrCodeMissingInbox   = "config_missing_inbox"
	ErrCodeMissingArchive = "config_missing_archive"
	ErrCodeVolumeMissing  = "archive_volume_missing"
)

const (
	DefaultFileName   = "galasort.yaml"
	ProberAuto        = "auto"
	ProberFFProbe     = "ffprobe"
	ProberMP4         = "mp4"
	VerifySize        = "size"
	VerifyContent     = "content"
	quarantineDirName = "_Quarantine"
)

// FileConfig is the YAML file layout.
type FileConfig struct {
	Inbox           string   `yaml:"inbox"`
	ArchiveRoot     string   `yaml:"archive_root"`
	VideoRoot       string   `yaml:"video_root"`
	PhotoRoot       string   `yaml:"photo_root"`
	Quarantine      string   `yaml:"quarantine"`
	PrefsFile       string   `yaml:"prefs_file"`
	FFProbe         string   `yaml:"ffprobe"`
	Prober          string   `yaml:"prober"`
	Verify          string   `yaml:"verify"`
	DryRun          *bool    `yaml:"dry_run"`
	ProbeTimeout    string   `yaml:"probe_timeout"`
	VideoExtensions []string `yaml:"video_extensions"`
	PhotoExtensions []string `yaml:"photo_extensions"`
}

// CLIArgs carries the flags that can override the file, with whether each was set.
type CLIArgs struct {
	ConfigPath string

	Inbox       string
	ArchiveRoot string

	DryRun    bool
	DryRunSet bool

	Prober       string
	Verify       string
	FFProbe      string
	ProbeTimeout time.Duration
	TimeoutSet   bool
}

// Effective is the merged configuration with every path absolute.
type Effective struct {
	ConfigPath string

	Inbox         string
	ArchiveRoot   string
	VideoRoot     string
	PhotoRoot     string
	QuarantineDir string
	PrefsFile     string

	FFProbe       string
	Prober        string
	VerifyContent bool
	DryRun        bool
	ProbeTimeout  time.Duration

	VideoExtensions []string
	PhotoExtensions []string
}

// Error is a configuration failure. All of them are fatal at startup.
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s: config file %q not found", e.Code, e.Path)
	case ErrCodeMissingInbox:
		return fmt.Sprintf("%s: no inbox given on the command line or in %q", e.Code, e.Path)
	case ErrCodeVolumeMissing:
		return fmt.Sprintf("%s: archive root %q is not available: %v", e.Code, e.Path, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s: %q: %v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s: %q", e.Code, e.Path)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code extracts the error code, or "" when err is not a *Error.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Load reads the config file and merges it with cli.
// An explicit ConfigPath must exist; otherwise <cwd>/galasort.yaml is optional.
func Load(cwd string, cli CLIArgs) (Effective, error) {
	cfgPath := cli.ConfigPath
	required := cfgPath != ""
	if !required {
		cfgPath = DefaultFileName
	}
	cfgPath = absFrom(cwd, cfgPath)

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if required && !exists {
		return Effective{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}
	if !exists {
		cfgPath = ""
	}
	return merge(cwd, cfgPath, cli, fc)
}

func merge(cwd, cfgPath string, cli CLIArgs, fc FileConfig) (Effective, error) {
	eff := Effective{ConfigPath: cfgPath}

	inbox := fc.Inbox
	if strings.TrimSpace(cli.Inbox) != "" {
		inbox = cli.Inbox
	}
	if strings.TrimSpace(inbox) == "" {
		return Effective{}, &Error{Code: ErrCodeMissingInbox, Path: cfgPath}
	}
	eff.Inbox = absFrom(cwd, inbox)

	eff.FFProbe = firstNonBlank(cli.FFProbe, fc.FFProbe, "ffprobe")

	eff.Prober = strings.ToLower(firstNonBlank(cli.Prober, fc.Prober, ProberAuto))
	switch eff.Prober {
	case ProberAuto, ProberFFProbe, ProberMP4:
	default:
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("prober must be auto, ffprobe or mp4, got %q", eff.Prober)}
	}

	switch verify := strings.ToLower(firstNonBlank(cli.Verify, fc.Verify, VerifySize)); verify {
	case VerifySize:
	case VerifyContent:
		eff.VerifyContent = true
	default:
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath,
			Err: fmt.Errorf("verify must be size or content, got %q", verify)}
	}

	// Dry run unless told otherwise.
	eff.DryRun = true
	if cli.DryRunSet {
		eff.DryRun = cli.DryRun
	} else if fc.DryRun != nil {
		eff.DryRun = *fc.DryRun
	}

	if cli.TimeoutSet {
		eff.ProbeTimeout = cli.ProbeTimeout
	} else if fc.ProbeTimeout != "" {
		d, err := time.ParseDuration(fc.ProbeTimeout)
		if err != nil {
			return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("probe_timeout: %w", err)}
		}
		eff.ProbeTimeout = d
	}
	if eff.ProbeTimeout < 0 {
		return Effective{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("negative probe timeout %v", eff.ProbeTimeout)}
	}

	eff.VideoExtensions = media.DefaultVideoExtensions
	if len(fc.VideoExtensions) > 0 {
		eff.VideoExtensions = append([]string(nil), fc.VideoExtensions...)
	}
	eff.PhotoExtensions = media.DefaultPhotoExtensions
	if len(fc.PhotoExtensions) > 0 {
		eff.PhotoExtensions = append([]string(nil), fc.PhotoExtensions...)
	}

	archive := fc.ArchiveRoot
	if strings.TrimSpace(cli.ArchiveRoot) != "" {
		archive = cli.ArchiveRoot
	}
	if strings.TrimSpace(archive) == "" {
		// Root of the drive holding the inbox. Without drive letters that
		// would be the filesystem root, so the archive must be named.
		volume := filepath.VolumeName(eff.Inbox)
		if volume == "" {
			return Effective{}, &Error{Code: ErrCodeMissingArchive, Path: cfgPath,
				Err: errors.New("archive root required when the inbox has no drive letter")}
		}
		archive = volume + string(filepath.Separator)
	}
	eff.ArchiveRoot = absFrom(cwd, archive)

	eff.VideoRoot = orDefault(cwd, fc.VideoRoot, filepath.Join(eff.ArchiveRoot, "Videos", "Raw Videos"))
	eff.PhotoRoot = orDefault(cwd, fc.PhotoRoot, filepath.Join(eff.ArchiveRoot, "Photography"))
	eff.QuarantineDir = orDefault(cwd, fc.Quarantine, filepath.Join(eff.ArchiveRoot, quarantineDirName))
	eff.PrefsFile = orDefault(cwd, fc.PrefsFile, defaultPrefsFile(eff.ArchiveRoot))
	return eff, nil
}

// CheckVolume fails when the archive root is absent, e.g. the drive is not plugged in.
// Nothing may be touched when this fails.
func CheckVolume(eff Effective) error {
	stat, err := os.Stat(eff.ArchiveRoot)
	if err != nil {
		return &Error{Code: ErrCodeVolumeMissing, Path: eff.ArchiveRoot, Err: err}
	}
	if !stat.IsDir() {
		return &Error{Code: ErrCodeVolumeMissing, Path: eff.ArchiveRoot, Err: errors.New("not a directory")}
	}
	return nil
}

func defaultPrefsFile(archiveRoot string) string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "galasort", prefs.DefaultFileName)
	}
	return filepath.Join(archiveRoot, prefs.DefaultFileName)
}

func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := yaml.UnmarshalStrict(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

func orDefault(cwd, value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return absFrom(cwd, value)
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absFrom makes p absolute relative to base.
func absFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

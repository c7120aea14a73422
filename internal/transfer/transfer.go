// Package transfer moves files into the archive with a verified copy-then-delete.
//
// A rename would be cheaper but fails across volumes and cannot be checked before
// the source is gone. Files whose copy cannot be verified are moved into a
// quarantine directory instead of being deleted.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/udhos/equalfile"

	"github.com/madkins23/galasort/internal/layout"
)

type Outcome int

const (
	Moved Outcome = iota
	MovedDryRun
	QuarantinedSizeMismatch
	QuarantinedError
)

func (o Outcome) String() string {
	switch o {
	case Moved:
		return "moved"
	case MovedDryRun:
		return "dry-run"
	case QuarantinedSizeMismatch:
		return "quarantined-size-mismatch"
	case QuarantinedError:
		return "quarantined-error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Quarantined reports whether the source ended up in quarantine.
func (o Outcome) Quarantined() bool {
	return o == QuarantinedSizeMismatch || o == QuarantinedError
}

var (
	ErrSizeMismatch    = errors.New("target size does not match source")
	ErrTargetMissing   = errors.New("target missing after copy")
	ErrContentMismatch = errors.New("target content does not match source")
)

const (
	DefaultRemoveAttempts = 3
	DefaultRemoveDelay    = 250 * time.Millisecond
)

// Replaceable so tests can damage the copy.
var copyFunc = copyFile

type Result struct {
	Outcome Outcome
	Source  string
	Target  string
	// Quarantine is where the source went when the transfer could not be verified.
	Quarantine string
	// Err explains a quarantine, or a Moved transfer whose source could not be removed.
	Err error
}

// Mover performs transfers on a filesystem.
type Mover struct {
	Fs            afero.Fs
	QuarantineDir string
	// VerifyContent adds a byte comparison after the size check.
	VerifyContent  bool
	RemoveAttempts uint
	RemoveDelay    time.Duration

	fileCompare *equalfile.Cmp
}

func NewMover(fs afero.Fs, quarantineDir string) *Mover {
	return &Mover{
		Fs:             fs,
		QuarantineDir:  quarantineDir,
		RemoveAttempts: DefaultRemoveAttempts,
		RemoveDelay:    DefaultRemoveDelay,
		fileCompare:    equalfile.New(nil, equalfile.Options{}),
	}
}

// Transfer moves source to target. In dry run mode nothing is touched.
func (m *Mover) Transfer(source, target string, dryRun bool) Result {
	logger := log.Logger.With().Str("source", source).Str("target", target).Logger()
	result := Result{Source: source, Target: target}

	if dryRun {
		logger.Info().Msg("Would move file")
		result.Outcome = MovedDryRun
		return result
	}

	if err := checkTargetDir(m.Fs, filepath.Dir(target)); err != nil {
		return m.quarantine(logger, result, QuarantinedError, fmt.Errorf("check target dir: %w", err))
	}
	if err := copyFunc(m.Fs, source, target); err != nil {
		return m.quarantine(logger, result, QuarantinedError, fmt.Errorf("copy file: %w", err))
	}

	if err := m.verify(source, target); err != nil {
		if errors.Is(err, ErrSizeMismatch) || errors.Is(err, ErrTargetMissing) || errors.Is(err, ErrContentMismatch) {
			return m.quarantine(logger, result, QuarantinedSizeMismatch, err)
		}
		return m.quarantine(logger, result, QuarantinedError, fmt.Errorf("verify copy: %w", err))
	}

	result.Outcome = Moved
	if err := m.removeSource(source); err != nil {
		// The verified copy stays; the operator has to clean up the inbox.
		result.Err = fmt.Errorf("remove source: %w", err)
		logger.Warn().Err(err).Msg("Copied file but could not remove source")
		return result
	}
	logger.Info().Msg("Moved file")
	return result
}

func (m *Mover) verify(source, target string) error {
	sourceStat, err := m.Fs.Stat(source)
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}
	targetStat, err := m.Fs.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return ErrTargetMissing
	} else if err != nil {
		return fmt.Errorf("stat target file: %w", err)
	}
	if sourceStat.Size() != targetStat.Size() {
		return fmt.Errorf("%w: source %d bytes, target %d bytes", ErrSizeMismatch, sourceStat.Size(), targetStat.Size())
	}
	if !m.VerifyContent {
		return nil
	}
	if equal, err := m.compareFiles(source, target); err != nil {
		return fmt.Errorf("compare files: %w", err)
	} else if !equal {
		return ErrContentMismatch
	}
	return nil
}

func (m *Mover) compareFiles(source, target string) (bool, error) {
	sourceFile, err := m.Fs.Open(source)
	if err != nil {
		return false, fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = sourceFile.Close() }()
	targetFile, err := m.Fs.Open(target)
	if err != nil {
		return false, fmt.Errorf("open target file: %w", err)
	}
	defer func() { _ = targetFile.Close() }()
	if m.fileCompare == nil {
		m.fileCompare = equalfile.New(nil, equalfile.Options{})
	}
	return m.fileCompare.CompareReader(sourceFile, targetFile)
}

func (m *Mover) removeSource(source string) error {
	attempts := m.RemoveAttempts
	if attempts == 0 {
		attempts = 1
	}
	return retry.Do(func() error {
		return m.Fs.Remove(source)
	}, retry.Attempts(attempts), retry.Delay(m.RemoveDelay), retry.LastErrorOnly(true))
}

// quarantine moves the original source aside and leaves any partial target in place.
func (m *Mover) quarantine(logger zerolog.Logger, result Result, outcome Outcome, cause error) Result {
	result.Outcome = outcome
	result.Err = cause
	path, err := m.moveToQuarantine(result.Source)
	// A copy may already sit in quarantine even when the move failed.
	result.Quarantine = path
	if err != nil {
		result.Err = errors.Join(cause, fmt.Errorf("quarantine source: %w", err))
		logger.Error().Err(result.Err).Msg("Could not quarantine source")
		return result
	}
	logger.Error().Err(cause).Str("quarantine", path).Str("outcome", outcome.String()).Msg("Quarantined source")
	return result
}

func (m *Mover) moveToQuarantine(source string) (string, error) {
	if m.QuarantineDir == "" {
		return "", errors.New("no quarantine directory configured")
	}
	if err := checkTargetDir(m.Fs, m.QuarantineDir); err != nil {
		return "", fmt.Errorf("check quarantine dir: %w", err)
	}
	path, err := layout.ResolveCollision(m.Fs, m.QuarantineDir, filepath.Base(source))
	if err != nil {
		return "", err
	}
	if err := m.Fs.Rename(source, path); err == nil {
		return path, nil
	}
	// Rename fails across volumes.
	if err := copyFunc(m.Fs, source, path); err != nil {
		return "", fmt.Errorf("copy to quarantine: %w", err)
	}
	if err := m.Fs.Remove(source); err != nil {
		return path, fmt.Errorf("remove source after quarantine copy: %w", err)
	}
	return path, nil
}

// checkTargetDir creates the directory tree if needed.
func checkTargetDir(fs afero.Fs, targetDir string) error {
	if stat, err := fs.Stat(targetDir); err == nil {
		if !stat.IsDir() {
			return fmt.Errorf("target dir is not a directory")
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := fs.MkdirAll(targetDir, 0o755); err != nil {
			return fmt.Errorf("make target dir: %w", err)
		}
	} else {
		return fmt.Errorf("stat target dir: %w", err)
	}
	return nil
}

// copyFile copies content, then modification time and permission bits.
func copyFile(fs afero.Fs, source, target string) error {
	sourceFile, err := fs.Open(source)
	if err != nil {
		return fmt.Errorf("open source file: %w", err)
	}
	defer func() { _ = sourceFile.Close() }()
	sourceStat, err := sourceFile.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}
	targetFile, err := fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create target file: %w", err)
	}
	if _, err = io.Copy(targetFile, sourceFile); err != nil {
		_ = targetFile.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	if err = targetFile.Close(); err != nil {
		return fmt.Errorf("close target file: %w", err)
	}
	if err = fs.Chtimes(target, sourceStat.ModTime(), sourceStat.ModTime()); err != nil {
		return fmt.Errorf("preserve times: %w", err)
	}
	if err = fs.Chmod(target, sourceStat.Mode().Perm()); err != nil {
		return fmt.Errorf("preserve mode: %w", err)
	}
	return nil
}

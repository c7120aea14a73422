// Package sorter runs the per-file workflow over an inbox: classify, date,
// build the destination, resolve collisions and transfer.
//
// Files are handled one at a time. A failure on one file is recorded in the
// report and never stops the rest of the batch.
package sorter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/madkins23/galasort/internal/config"
	"github.com/madkins23/galasort/internal/layout"
	"github.com/madkins23/galasort/internal/media"
	"github.com/madkins23/galasort/internal/prefs"
	"github.com/madkins23/galasort/internal/probe"
	"github.com/madkins23/galasort/internal/recdate"
	"github.com/madkins23/galasort/internal/transfer"
)

// Labels are the operator's answers for the current files.
type Labels struct {
	LocoName    string
	LocoNumber  string
	Location    string
	Description string

	// Manual date; ignored when the file carries its own date.
	Year  int
	Month int
	Day   int

	// Project selects the project layout instead of the loco layout.
	Project string
}

type Options struct {
	DryRun bool
	// Limit applies the labels to the next Limit files only. Zero means all.
	Limit int
}

type Sorter struct {
	Fs           afero.Fs
	Classifier   *media.Classifier
	Prober       media.Prober
	Dates        *recdate.Resolver
	Mover        *transfer.Mover
	Prefs        *prefs.Store
	Roots        layout.Roots
	ProbeTimeout time.Duration
	Now          func() time.Time
	// OnItem is called after each file; used for progress display.
	OnItem func(done, total int, item Item)

	// planned holds targets reserved by a dry run so later files in the
	// same batch see them as taken.
	planned afero.Fs
}

// New wires a Sorter from the effective configuration.
// The prober is shared by orientation detection and the container date strategy.
func New(fs afero.Fs, cfg config.Effective, prober media.Prober, store *prefs.Store) *Sorter {
	memo := probe.NewMemo(prober)
	mover := transfer.NewMover(fs, cfg.QuarantineDir)
	mover.VerifyContent = cfg.VerifyContent
	return &Sorter{
		Fs:           fs,
		Classifier:   media.NewClassifier(cfg.VideoExtensions, cfg.PhotoExtensions),
		Prober:       memo,
		Dates:        recdate.NewResolver(memo),
		Mover:        mover,
		Prefs:        store,
		Roots:        layout.Roots{Photo: cfg.PhotoRoot, Video: cfg.VideoRoot},
		ProbeTimeout: cfg.ProbeTimeout,
		Now:          time.Now,
	}
}

// ListInbox returns the media files directly inside dir in name order.
// Directories and unrecognized files are skipped.
func (s *Sorter) ListInbox(dir string) ([]media.File, error) {
	entries, err := afero.ReadDir(s.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	files := make([]media.File, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.Mode()&os.ModeSymlink != 0 {
			if entry, err = s.Fs.Stat(path); err != nil {
				log.Debug().Err(err).Str("file", path).Msg("Skipping broken link")
				continue
			}
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		file := s.Classifier.Classify(path)
		if file.Category == media.Unknown {
			log.Debug().Str("file", file.Path).Msg("Skipping unrecognized file")
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// Run processes the inbox with one set of labels.
func (s *Sorter) Run(ctx context.Context, inbox string, labels Labels, opts Options) (Report, error) {
	report := Report{Inbox: inbox, DryRun: opts.DryRun, StartedAt: s.now()}

	files, err := s.ListInbox(inbox)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		log.Info().Str("inbox", inbox).Msg("Inbox is empty, nothing to sort")
	}

	if opts.DryRun {
		s.planned = afero.NewMemMapFs()
		defer func() { s.planned = nil }()
	}

	batch := files
	if opts.Limit > 0 && opts.Limit < len(files) {
		batch = files[:opts.Limit]
	}
	report.Items = make([]Item, 0, len(batch))
	for i, file := range batch {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Msg("Batch interrupted")
			break
		}
		item := s.Process(ctx, file, labels, opts.DryRun)
		report.Items = append(report.Items, item)
		if s.OnItem != nil {
			s.OnItem(i+1, len(batch), item)
		}
	}

	report.FinishedAt = s.now()
	report.Finalize(len(files) - len(report.Items))
	return report, nil
}

// Process handles a single file and never returns an error; problems go into the Item.
func (s *Sorter) Process(ctx context.Context, file media.File, labels Labels, dryRun bool) Item {
	logger := log.Logger.With().Str("source", file.Path).Logger()
	item := Item{Source: file.Path, Category: file.Category.String()}

	probeCtx := ctx
	if s.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, s.ProbeTimeout)
		defer cancel()
	}

	orientation := media.OrientationUnknown
	if file.IsVideo() {
		var info *media.Info
		var err error
		orientation, info, err = media.DetectOrientation(probeCtx, s.Prober, file.Path)
		if err != nil {
			logger.Error().Err(err).Msg("Could not determine orientation")
			return skipped(item, fmt.Errorf("probe: %w", err))
		}
		item.Orientation = orientation.String()
		logger.Debug().Str("orientation", item.Orientation).Dur("duration", info.Duration).Msg("Probed video")
	}

	var targetDir, targetName string
	if labels.Project != "" {
		targetDir = layout.BuildProjectDir(s.Roots, labels.Project, s.now(), orientation, file.IsPhoto())
		targetName = filepath.Base(file.Path)
	} else {
		date, err := s.recordedDate(probeCtx, logger, file, labels)
		if err != nil {
			logger.Error().Err(err).Msg("Could not determine recorded date")
			return skipped(item, err)
		}
		item.Date = date.String()
		item.DateSource = date.Source.String()

		descriptor := layout.Descriptor{
			LocoName:    labels.LocoName,
			LocoNumber:  labels.LocoNumber,
			Location:    labels.Location,
			Year:        date.Year,
			Month:       date.Month,
			Day:         date.Day,
			Orientation: orientation,
			IsPhoto:     file.IsPhoto(),
		}
		for _, problem := range descriptor.Problems() {
			logger.Warn().Str("problem", problem).Msg("Degenerate destination label")
		}
		targetDir = layout.BuildDestinationDir(s.Roots, descriptor)
		targetName = layout.BuildFileName(labels.LocoNumber, date.Year, labels.Location, labels.Description, filepath.Ext(file.Path))
	}

	names := s.Fs
	if dryRun && s.planned != nil {
		names = afero.NewCopyOnWriteFs(s.Fs, s.planned)
	}
	target, err := layout.ResolveCollision(names, targetDir, targetName)
	if err != nil {
		logger.Error().Err(err).Msg("Could not resolve target name")
		return skipped(item, err)
	}
	item.Target = target

	result := s.Mover.Transfer(file.Path, target, dryRun)
	item.Outcome = result.Outcome.String()
	item.Quarantine = result.Quarantine
	if result.Err != nil {
		item.Error = result.Err.Error()
	}
	switch {
	case result.Outcome == transfer.MovedDryRun:
		item.Status = StatusPlanned
		s.reserve(logger, target)
	case result.Outcome.Quarantined():
		item.Status = StatusQuarantined
	default:
		item.Status = StatusMoved
		s.remember(logger, labels)
	}
	return item
}

func (s *Sorter) recordedDate(ctx context.Context, logger zerolog.Logger, file media.File, labels Labels) (recdate.RecordedDate, error) {
	date, err := s.Dates.Resolve(ctx, file)
	if err != nil {
		return date, err
	}
	overridden, err := recdate.Override(date, labels.Year, labels.Month, labels.Day)
	if errors.Is(err, recdate.ErrDateLocked) {
		if labels.Year != 0 || labels.Month != 0 || labels.Day != 0 {
			logger.Warn().Str("date", date.String()).Str("strategy", date.Strategy).
				Msg("Ignoring manual date, file carries its own")
		}
		return date, nil
	} else if err != nil {
		return date, fmt.Errorf("manual date: %w", err)
	}
	return overridden, nil
}

// reserve marks a planned target as taken for the rest of a dry run.
func (s *Sorter) reserve(logger zerolog.Logger, target string) {
	if s.planned == nil {
		return
	}
	if err := s.planned.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		logger.Debug().Err(err).Msg("Could not reserve planned target")
	} else if err := afero.WriteFile(s.planned, target, nil, 0o644); err != nil {
		logger.Debug().Err(err).Msg("Could not reserve planned target")
	}
}

// remember records the labels after a completed move and saves the store.
func (s *Sorter) remember(logger zerolog.Logger, labels Labels) {
	if s.Prefs == nil || labels.Project != "" {
		return
	}
	if !s.Prefs.Remember(prefs.Loco{Name: labels.LocoName, Number: labels.LocoNumber}, labels.Location) {
		return
	}
	if err := s.Prefs.Save(); err != nil {
		logger.Warn().Err(err).Str("prefs", s.Prefs.Path()).Msg("Could not save label history")
	}
}

func (s *Sorter) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func skipped(item Item, err error) Item {
	item.Status = StatusSkipped
	item.Error = err.Error()
	return item
}

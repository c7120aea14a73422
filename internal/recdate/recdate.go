// Package recdate decides when a media file was recorded.
//
// A Resolver walks an ordered list of named strategies. The first one that finds a
// date wins and the result is tagged with its source so callers can decide whether
// the operator may still edit it.
package recdate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/madkins23/galasort/internal/media"
)

type Source int

const (
	Metadata Source = iota
	ModifiedDate
	Manual
)

func (s Source) String() string {
	switch s {
	case Metadata:
		return "metadata"
	case ModifiedDate:
		return "modified"
	case Manual:
		return "manual"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// ErrNoDate means a strategy did not apply or found nothing. It is not a failure.
var ErrNoDate = errors.New("no date available")

// ErrDateLocked is returned when a manual date is applied over an embedded one.
var ErrDateLocked = errors.New("date comes from file metadata and cannot be edited")

type RecordedDate struct {
	Year     int
	Month    int
	Day      int
	Source   Source
	Strategy string
	Time     time.Time
}

// Locked reports whether manual editing is disabled.
func (d RecordedDate) Locked() bool { return d.Source == Metadata }

func (d RecordedDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func fromTime(t time.Time, source Source, strategy string) RecordedDate {
	return RecordedDate{
		Year:     t.Year(),
		Month:    int(t.Month()),
		Day:      t.Day(),
		Source:   source,
		Strategy: strategy,
		Time:     t,
	}
}

// Override applies an operator-supplied date. Zero fields keep the current value.
func Override(d RecordedDate, year, month, day int) (RecordedDate, error) {
	if d.Locked() {
		return d, ErrDateLocked
	}
	if year == 0 && month == 0 && day == 0 {
		return d, nil
	}
	if year != 0 {
		d.Year = year
	}
	if month != 0 {
		d.Month = month
	}
	if day != 0 {
		d.Day = day
	}
	t := time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.Local)
	if t.Year() != d.Year || int(t.Month()) != d.Month || t.Day() != d.Day {
		return d, fmt.Errorf("invalid date %04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
	d.Source = Manual
	d.Strategy = "manual"
	d.Time = t
	return d, nil
}

// Strategy is one named way of finding a recorded date.
type Strategy interface {
	Name() string
	Source() Source
	// Lookup returns ErrNoDate (possibly wrapped) when it has nothing to offer.
	Lookup(ctx context.Context, file media.File) (time.Time, error)
}

type Resolver struct {
	Strategies []Strategy
}

// NewResolver builds the standard order: container tag, movie header,
// EXIF (two readers), then file modification time.
func NewResolver(prober media.Prober) *Resolver {
	return &Resolver{Strategies: []Strategy{
		ContainerTag{Prober: prober},
		MovieHeader{},
		EXIFOriginal{},
		EXIFDecode{},
		ModTime{},
	}}
}

func (r *Resolver) Resolve(ctx context.Context, file media.File) (RecordedDate, error) {
	var errs []error
	for _, s := range r.Strategies {
		when, err := s.Lookup(ctx, file)
		if err == nil {
			return fromTime(when, s.Source(), s.Name()), nil
		}
		if !errors.Is(err, ErrNoDate) {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
		log.Debug().Err(err).Str("strategy", s.Name()).Str("file", file.Path).Msg("No date from strategy")
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return RecordedDate{}, fmt.Errorf("resolve date for %q: %w", file.Path, ErrNoDate)
	}
	return RecordedDate{}, fmt.Errorf("resolve date for %q: %w", file.Path, errors.Join(errs...))
}

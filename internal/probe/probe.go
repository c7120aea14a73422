// Package probe reads stream geometry, rotation, creation time and duration from media files.
//
// Two probers are provided: FFProbe runs the external ffprobe tool and MP4 parses
// ISO-BMFF containers in process. Chain tries several in order.
package probe

import (
	"context"
	"errors"
	"fmt"

	"github.com/madkins23/galasort/internal/media"
)

// Error reports a file the prober could not read. It is never fatal to a batch.
type Error struct {
	Tool string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("probe %s %q: %v", e.Tool, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsProbeFailure reports whether err came from a prober.
func IsProbeFailure(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Chain returns the first successful result of its probers.
type Chain []media.Prober

var _ media.Prober = Chain(nil)

func (c Chain) Probe(ctx context.Context, path string) (*media.Info, error) {
	if len(c) == 0 {
		return nil, &Error{Tool: "chain", Path: path, Err: errors.New("no probers")}
	}
	var errs []error
	for _, p := range c {
		info, err := p.Probe(ctx, path)
		if err == nil {
			return info, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

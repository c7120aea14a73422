package probe

import (
	"context"

	"github.com/madkins23/galasort/internal/media"
)

// Memo remembers the most recent result so orientation and date lookups
// for the same file share one probe.
type Memo struct {
	Prober media.Prober

	path string
	info *media.Info
	err  error
}

var _ media.Prober = (*Memo)(nil)

func NewMemo(p media.Prober) *Memo {
	return &Memo{Prober: p}
}

func (m *Memo) Probe(ctx context.Context, path string) (*media.Info, error) {
	if m.path == path && (m.info != nil || m.err != nil) {
		return m.info, m.err
	}
	info, err := m.Prober.Probe(ctx, path)
	if ctx.Err() != nil {
		// Do not remember results cut short by cancellation.
		return info, err
	}
	m.path, m.info, m.err = path, info, err
	return info, err
}

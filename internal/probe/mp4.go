package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/abema/go-mp4"

	"github.com/madkins23/galasort/internal/media"
)

// MP4 reads ISO-BMFF containers (mp4, mov, m4v) without an external tool.
// The display matrix of the first visual track stands in for ffprobe side data.
type MP4 struct{}

var _ media.Prober = MP4{}

// Mvhd/CreationTime is seconds since Jan 1, 1904 UTC.
var mp4Epoch = time.Date(1904, time.January, 1, 0, 0, 0, 0, time.UTC)

func (MP4) Probe(ctx context.Context, path string) (*media.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Tool: "mp4", Path: path, Err: err}
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, &Error{Tool: "mp4", Path: path, Err: fmt.Errorf("open file: %w", err)}
	}
	defer func() { _ = file.Close() }()

	tkhd, err := firstVisualTrack(file)
	if err != nil {
		return nil, &Error{Tool: "mp4", Path: path, Err: err}
	}
	info := &media.Info{
		Width:  int(tkhd.Width >> 16),
		Height: int(tkhd.Height >> 16),
	}
	if rotation := matrixRotation(tkhd.Matrix); rotation != 0 {
		info.SideDataRotation = &rotation
	}

	if mvhd, err := movieHeader(file); err == nil {
		if created, ok := mvhdCreationTime(mvhd); ok {
			info.CreationTime = created.Format(time.RFC3339)
		}
		info.Duration = mvhdDuration(mvhd)
	}
	return info, nil
}

// ReadMovieHeader returns the creation time and duration recorded in moov/mvhd.
func ReadMovieHeader(path string) (time.Time, time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	mvhd, err := movieHeader(file)
	if err != nil {
		return time.Time{}, 0, err
	}
	created, ok := mvhdCreationTime(mvhd)
	if !ok {
		return time.Time{}, 0, errors.New("mvhd creation time is zero")
	}
	return created, mvhdDuration(mvhd), nil
}

func movieHeader(r io.ReadSeeker) (*mp4.Mvhd, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	metadata, err := mp4.ExtractBoxWithPayload(r, nil, mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()})
	if err != nil {
		return nil, fmt.Errorf("extract mvhd: %w", err)
	}
	if len(metadata) != 1 {
		return nil, fmt.Errorf("wrong number of mvhd boxes: %d", len(metadata))
	}
	payload, ok := metadata[0].Payload.(*mp4.Mvhd)
	if !ok {
		return nil, fmt.Errorf("convert metadata payload to mvhd: %T", metadata[0].Payload)
	}
	return payload, nil
}

func firstVisualTrack(r io.ReadSeeker) (*mp4.Tkhd, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek: %w", err)
	}
	boxes, err := mp4.ExtractBoxWithPayload(r, nil,
		mp4.BoxPath{mp4.BoxTypeMoov(), mp4.BoxTypeTrak(), mp4.BoxTypeTkhd()})
	if err != nil {
		return nil, fmt.Errorf("extract tkhd: %w", err)
	}
	for _, box := range boxes {
		// Audio tracks carry a zero width and height.
		if tkhd, ok := box.Payload.(*mp4.Tkhd); ok && tkhd.Width>>16 > 0 && tkhd.Height>>16 > 0 {
			return tkhd, nil
		}
	}
	return nil, errors.New("no visual track")
}

func mvhdCreationTime(mvhd *mp4.Mvhd) (time.Time, bool) {
	seconds := uint64(mvhd.CreationTimeV0)
	if mvhd.GetVersion() == 1 {
		seconds = mvhd.CreationTimeV1
	}
	if seconds == 0 {
		return time.Time{}, false
	}
	return mp4Epoch.Add(time.Second * time.Duration(seconds)), true
}

func mvhdDuration(mvhd *mp4.Mvhd) time.Duration {
	if mvhd.Timescale == 0 {
		return 0
	}
	units := uint64(mvhd.DurationV0)
	if mvhd.GetVersion() == 1 {
		units = mvhd.DurationV1
	}
	return time.Duration(float64(units) / float64(mvhd.Timescale) * float64(time.Second))
}

// matrixRotation converts the 16.16 fixed point display matrix into whole degrees.
func matrixRotation(matrix [9]int32) int {
	a, b := float64(matrix[0]), float64(matrix[1])
	if a == 0 && b == 0 {
		return 0
	}
	return int(math.Round(math.Atan2(b, a) * 180 / math.Pi))
}

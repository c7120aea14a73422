package media

import (
	"context"
	"errors"
	"fmt"
)

type Orientation int

const (
	OrientationUnknown Orientation = iota
	Landscape
	Portrait
	Square
)

func (o Orientation) String() string {
	switch o {
	case Landscape:
		return "Landscape"
	case Portrait:
		return "Portrait"
	case Square:
		return "Square"
	default:
		return "Unknown"
	}
}

// Prober reads container metadata for a single file.
type Prober interface {
	Probe(ctx context.Context, path string) (*Info, error)
}

// ClassifyOrientation compares displayed width and height.
// Odd multiples of 90 degrees swap the stored dimensions first.
func ClassifyOrientation(info *Info) Orientation {
	if info == nil || info.Width <= 0 || info.Height <= 0 {
		return OrientationUnknown
	}
	width, height := info.Width, info.Height
	if swapsDimensions(info.Rotation()) {
		width, height = height, width
	}
	switch {
	case width > height:
		return Landscape
	case height > width:
		return Portrait
	default:
		return Square
	}
}

func swapsDimensions(rotation int) bool {
	if rotation < 0 {
		rotation = -rotation
	}
	return rotation%180 == 90
}

// DetectOrientation probes the file and classifies it.
// Failures return OrientationUnknown together with the error so the caller can report it.
func DetectOrientation(ctx context.Context, prober Prober, path string) (Orientation, *Info, error) {
	if prober == nil {
		return OrientationUnknown, nil, errors.New("no prober configured")
	}
	info, err := prober.Probe(ctx, path)
	if err != nil {
		return OrientationUnknown, nil, err
	}
	orientation := ClassifyOrientation(info)
	if orientation == OrientationUnknown {
		return orientation, info, fmt.Errorf("no usable video dimensions: %dx%d", info.Width, info.Height)
	}
	return orientation, info, nil
}

package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/madkins23/galasort/internal/media"
)

const DefaultFFProbe = "ffprobe"

// FFProbe invokes the ffprobe executable once per file.
// No timeout is applied here; callers may bound ctx.
type FFProbe struct {
	Path string
}

var _ media.Prober = FFProbe{}

// Available reports whether the executable can be found.
func (f FFProbe) Available() bool {
	_, err := exec.LookPath(f.command())
	return err == nil
}

func (f FFProbe) command() string {
	if f.Path == "" {
		return DefaultFFProbe
	}
	return f.Path
}

func (f FFProbe) Probe(ctx context.Context, path string) (*media.Info, error) {
	cmd := exec.CommandContext(ctx, f.command(),
		"-v", "error", "-print_format", "json", "-show_format", "-show_streams", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &Error{Tool: "ffprobe", Path: path, Err: err}
	}
	info, err := parseFFProbe(out)
	if err != nil {
		return nil, &Error{Tool: "ffprobe", Path: path, Err: err}
	}
	return info, nil
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  struct {
		Duration string            `json:"duration"`
		Tags     map[string]string `json:"tags"`
	} `json:"format"`
}

type ffprobeStream struct {
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		Rotation *float64 `json:"rotation"`
	} `json:"side_data_list"`
}

func parseFFProbe(out []byte) (*media.Info, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	var video *ffprobeStream
	for i := range parsed.Streams {
		if parsed.Streams[i].CodecType == "video" {
			video = &parsed.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, errors.New("no video stream")
	}

	info := &media.Info{
		Width:  video.Width,
		Height: video.Height,
	}
	if raw, ok := video.Tags["rotate"]; ok {
		rotate, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse rotate tag %q: %w", raw, err)
		}
		info.RotateTag = &rotate
	}
	for _, sd := range video.SideDataList {
		if sd.Rotation != nil {
			rotation := int(math.Round(*sd.Rotation))
			info.SideDataRotation = &rotation
		}
	}

	info.CreationTime = parsed.Format.Tags["creation_time"]
	if info.CreationTime == "" {
		info.CreationTime = video.Tags["creation_time"]
	}
	if parsed.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	return info, nil
}

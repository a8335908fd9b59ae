// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package capture records evidence from the host camera by driving ffmpeg as
// a subprocess. Capture is silent: no window, no indicator beyond the
// camera's own hardware light, and failures never propagate to the person at
// the keyboard.
//
// Video is preferred; when the recorder cannot start or finish inside its
// time box, capture degrades to a single photo. The subprocess always runs
// under a hard deadline so a wedged recorder cannot hold the camera device
// open indefinitely.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Artifact filename patterns. The timestamp keys artifacts to the episode
// timeline in the audit trail.
const (
	videoPattern = "intrusion_video_%s.avi"
	photoPattern = "intrusion_photo_%s.jpg"

	timestampLayout = "20060102_150405"
)

// ArtifactKind distinguishes evidence types.
type ArtifactKind string

const (
	KindVideo ArtifactKind = "video"
	KindPhoto ArtifactKind = "photo"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrCaptureUnavailable indicates no capture is possible on this host: no
// ffmpeg binary, no camera device, or no configured input.
var ErrCaptureUnavailable = errors.New("evidence capture unavailable")

// errTimeBox marks a recorder killed by its deadline. The output it left
// behind may still be usable footage.
var errTimeBox = errors.New("recorder exceeded time box")

// =============================================================================
// ARTIFACT
// =============================================================================

// Artifact describes one captured evidence file.
type Artifact struct {
	Kind       ArtifactKind
	Path       string
	CapturedAt time.Time
	SizeBytes  int64
}

// =============================================================================
// CAPTURER
// =============================================================================

// Options configures a Capturer.
type Options struct {
	// FFmpegPath is the recorder binary. Empty means look up "ffmpeg" in PATH.
	FFmpegPath string
	// Device is the camera input. Required on Windows (DirectShow device
	// name); defaults to the first video device elsewhere.
	Device string
	// MediaDir is where artifacts land.
	MediaDir string
	// VideoDuration is the recording length.
	VideoDuration time.Duration
	// StartupDeadline bounds recorder startup beyond the recording length.
	StartupDeadline time.Duration
}

// Capturer records camera evidence.
type Capturer struct {
	opts Options
}

// New creates a Capturer. Zero durations get sane floors.
func New(opts Options) *Capturer {
	if opts.VideoDuration <= 0 {
		opts.VideoDuration = 10 * time.Second
	}
	if opts.StartupDeadline <= 0 {
		opts.StartupDeadline = 3 * time.Second
	}
	return &Capturer{opts: opts}
}

// CaptureEvidence records video, falling back to a photo when video fails.
// Only when both paths fail does it return an error.
func (c *Capturer) CaptureEvidence(ctx context.Context) (*Artifact, error) {
	artifact, videoErr := c.CaptureVideo(ctx)
	if videoErr == nil {
		return artifact, nil
	}

	artifact, photoErr := c.CapturePhoto(ctx)
	if photoErr == nil {
		return artifact, nil
	}
	return nil, fmt.Errorf("video capture failed (%v); photo fallback failed: %w", videoErr, photoErr)
}

// CaptureVideo records a clip of the configured duration.
func (c *Capturer) CaptureVideo(ctx context.Context) (*Artifact, error) {
	now := time.Now()
	outPath := filepath.Join(c.opts.MediaDir, fmt.Sprintf(videoPattern, now.Format(timestampLayout)))

	args, err := c.inputArgs()
	if err != nil {
		return nil, err
	}
	args = append(args,
		// Sub-second durations must survive the formatting: truncating to
		// whole seconds would ask ffmpeg for a zero-length recording.
		"-t", strconv.FormatFloat(c.opts.VideoDuration.Seconds(), 'f', -1, 64),
		"-y", outPath,
	)

	// Hard time box: recording length plus startup allowance. On expiry the
	// process is killed and the camera device released.
	deadline := c.opts.VideoDuration + c.opts.StartupDeadline
	if err := c.run(ctx, deadline, args); err != nil {
		// A recorder killed by the deadline often leaves a playable partial
		// clip. Partial footage of the intruder is evidence; keep it.
		if errors.Is(err, errTimeBox) {
			if artifact, aerr := c.finishArtifact(KindVideo, outPath, now); aerr == nil {
				return artifact, nil
			}
		}
		_ = os.Remove(outPath)
		return nil, err
	}
	return c.finishArtifact(KindVideo, outPath, now)
}

// CapturePhoto grabs a single frame.
func (c *Capturer) CapturePhoto(ctx context.Context) (*Artifact, error) {
	now := time.Now()
	outPath := filepath.Join(c.opts.MediaDir, fmt.Sprintf(photoPattern, now.Format(timestampLayout)))

	args, err := c.inputArgs()
	if err != nil {
		return nil, err
	}
	args = append(args,
		"-frames:v", "1",
		"-y", outPath,
	)

	if err := c.run(ctx, c.opts.StartupDeadline+2*time.Second, args); err != nil {
		_ = os.Remove(outPath)
		return nil, err
	}
	return c.finishArtifact(KindPhoto, outPath, now)
}

// inputArgs builds the platform camera input arguments.
func (c *Capturer) inputArgs() ([]string, error) {
	switch runtime.GOOS {
	case "windows":
		device := c.opts.Device
		if device == "" {
			return nil, fmt.Errorf("%w: no DirectShow device configured", ErrCaptureUnavailable)
		}
		return []string{"-f", "dshow", "-i", "video=" + device}, nil
	case "darwin":
		device := c.opts.Device
		if device == "" {
			device = "0"
		}
		return []string{"-f", "avfoundation", "-i", device}, nil
	default:
		device := c.opts.Device
		if device == "" {
			device = "/dev/video0"
		}
		return []string{"-f", "v4l2", "-i", device}, nil
	}
}

// run executes ffmpeg under a deadline with no visible window.
func (c *Capturer) run(ctx context.Context, deadline time.Duration, args []string) error {
	binary := c.opts.FFmpegPath
	if binary == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("%w: ffmpeg not found in PATH", ErrCaptureUnavailable)
		}
		binary = path
	}

	cmdCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, binary, append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)...)
	hideWindow(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w of %s", errTimeBox, deadline)
		}
		msg := bytes.TrimSpace(stderr.Bytes())
		if len(msg) > 0 {
			return fmt.Errorf("recorder failed: %s", msg)
		}
		return fmt.Errorf("recorder failed: %w", err)
	}
	return nil
}

// finishArtifact validates the output file and builds the Artifact record.
// A zero-byte file means the recorder started but captured nothing.
func (c *Capturer) finishArtifact(kind ArtifactKind, path string, capturedAt time.Time) (*Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("recorder produced no output: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return nil, fmt.Errorf("recorder produced empty output")
	}
	return &Artifact{
		Kind:       kind,
		Path:       path,
		CapturedAt: capturedAt,
		SizeBytes:  info.Size(),
	}, nil
}

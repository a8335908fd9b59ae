// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// =============================================================================
// RETENTION SWEEP
// =============================================================================

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Removed int
	Failed  int
	Freed   int64
}

// SweepRetention deletes evidence artifacts older than maxAge from mediaDir.
// Only files matching the artifact naming scheme are touched; the lock file
// and anything else in the directory are left alone.
func SweepRetention(ctx context.Context, mediaDir string, maxAge time.Duration) (*SweepResult, error) {
	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		if os.IsNotExist(err) {
			return &SweepResult{}, nil
		}
		return nil, err
	}

	cutoff := time.Now().Add(-maxAge)
	result := &SweepResult{}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if entry.IsDir() || !isArtifactName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			result.Failed++
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(mediaDir, entry.Name())); err != nil {
			result.Failed++
			continue
		}
		result.Removed++
		result.Freed += info.Size()
	}
	return result, nil
}

// isArtifactName reports whether name matches the evidence naming scheme.
func isArtifactName(name string) bool {
	return (strings.HasPrefix(name, "intrusion_video_") && strings.HasSuffix(name, ".avi")) ||
		(strings.HasPrefix(name, "intrusion_photo_") && strings.HasSuffix(name, ".jpg"))
}

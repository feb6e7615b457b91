// Copyright 2026 The AudioFS Authors
// SPDX-License-Identifier: Apache-2.0

package driver

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// flacDuration returns the total duration encoded in a FLAC file's
// STREAMINFO block, read via metaflac. Used by every driver's
// EstimateSize.
func flacDuration(ctx context.Context, path string) (time.Duration, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "metaflac",
		"--show-total-samples", "--show-sample-rate", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("metaflac --show-total-samples --show-sample-rate %s: %w (stderr: %s)",
			path, err, strings.TrimSpace(stderr.String()))
	}

	lines := strings.Fields(strings.TrimSpace(stdout.String()))
	if len(lines) != 2 {
		return 0, fmt.Errorf("metaflac %s: unexpected output %q", path, stdout.String())
	}
	totalSamples, err := strconv.ParseInt(lines[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metaflac %s: parsing total samples: %w", path, err)
	}
	sampleRate, err := strconv.ParseInt(lines[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("metaflac %s: parsing sample rate: %w", path, err)
	}
	if sampleRate == 0 {
		return 0, fmt.Errorf("metaflac %s: zero sample rate", path)
	}

	seconds := float64(totalSamples) / float64(sampleRate)
	return time.Duration(seconds * float64(time.Second)), nil
}

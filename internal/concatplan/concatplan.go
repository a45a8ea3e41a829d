// Package concatplan writes ffmpeg concat-demuxer manifest files: one line
// per asset, in playback order, with paths made absolute and single quotes
// escaped the way the concat demuxer's quoting rules require.
package concatplan

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/liveforge/streamctl/internal/domain/stream/model"
)

// Build writes a concat manifest for orderedPaths under dir, named after
// sessionID, and returns its path. The caller is responsible for shuffling
// random-mode playlists before calling Build; Build never reorders.
func Build(dir, sessionID string, orderedPaths []string) (string, error) {
	if len(orderedPaths) == 0 {
		return "", model.ErrEmptyPlaylist
	}

	manifestPath := filepath.Join(dir, fmt.Sprintf("session_%s.concat", sessionID))

	var b strings.Builder
	for _, p := range orderedPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", fmt.Errorf("%w: resolving %q: %v", model.ErrManifestIO, p, err)
		}
		b.WriteString("file '")
		b.WriteString(escapeSingleQuotes(abs))
		b.WriteString("'\n")
	}

	if err := os.WriteFile(manifestPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("%w: writing %q: %v", model.ErrManifestIO, manifestPath, err)
	}
	return manifestPath, nil
}

// Remove deletes a manifest written by Build. Missing files are not an error
// so Stop/Reap paths can call it unconditionally.
func Remove(manifestPath string) error {
	if manifestPath == "" {
		return nil
	}
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: removing %q: %v", model.ErrManifestIO, manifestPath, err)
	}
	return nil
}

// escapeSingleQuotes applies the concat demuxer's escaping rule: a literal
// single quote inside a quoted field is written as '\''  (close quote,
// escaped quote, reopen quote).
func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}

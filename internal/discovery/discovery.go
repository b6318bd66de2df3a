// Package discovery enumerates candidate job-descriptor files under the
// watched LaunchAgents directory.
package discovery

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const descriptorExt = ".plist"

// Scan lists descriptor files in dir whose label portion (the filename
// minus extension) matches at least one pattern as a prefix. An empty
// pattern set matches every descriptor file. Files with other extensions
// are silently skipped.
//
// A missing directory is not an error: a user who never registered a job
// sees an empty inventory, not a broken one.
func Scan(dir string, patterns []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.EqualFold(filepath.Ext(name), descriptorExt) {
			continue
		}
		label := strings.TrimSuffix(name, filepath.Ext(name))
		if matchesAny(label, patterns) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

func matchesAny(label string, patterns []string) bool {
	seen := false
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		seen = true
		if strings.HasPrefix(label, p) {
			return true
		}
	}
	// No usable patterns means no filtering.
	return !seen
}

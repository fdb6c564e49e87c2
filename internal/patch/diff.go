// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package patch validates and applies unified diffs against a working tree.
// Application goes through a fallback chain: git apply (strict check, then
// three-way merge), direct text substitution, and structured per-file
// search/replace.
package patch

import (
	"sort"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// Stats summarises the shape of a unified diff.
type Stats struct {
	FilesAffected int
	LinesAdded    int
	LinesRemoved  int
}

// ParseStats parses the diff and counts affected files and added/removed
// lines. Returns an error only when the diff cannot be parsed at all.
func ParseStats(diff string) (Stats, error) {
	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(diff)).ReadAllFiles()
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{FilesAffected: len(fileDiffs)}
	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
					stats.LinesAdded++
				case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
					stats.LinesRemoved++
				}
			}
		}
	}
	return stats, nil
}

// CountChangeLines counts lines beginning with + or -, excluding the
// +++/--- header lines. This is the count budgeted against max_diff_lines.
func CountChangeLines(diff string) int {
	count := 0
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			count++
		} else if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			count++
		}
	}
	return count
}

// Files extracts the target file paths from a unified diff. Well-formed
// diffs are parsed structurally; malformed ones fall back to scanning the
// ---/+++ header lines. Paths are deduplicated, sorted, and stripped of
// their a// b/ prefixes; /dev/null entries are dropped.
func Files(diff string) []string {
	seen := map[string]bool{}

	fileDiffs, err := godiff.NewMultiFileDiffReader(strings.NewReader(diff)).ReadAllFiles()
	if err == nil && len(fileDiffs) > 0 {
		for _, fd := range fileDiffs {
			for _, name := range []string{fd.NewName, fd.OrigName} {
				if path := cleanDiffPath(name); path != "" {
					seen[path] = true
				}
			}
		}
	} else {
		for _, line := range strings.Split(diff, "\n") {
			if strings.HasPrefix(line, "+++ ") || strings.HasPrefix(line, "--- ") {
				raw := strings.SplitN(line[4:], "\t", 2)[0]
				if path := cleanDiffPath(raw); path != "" {
					seen[path] = true
				}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for path := range seen {
		files = append(files, path)
	}
	sort.Strings(files)
	return files
}

func cleanDiffPath(raw string) string {
	path := strings.TrimSpace(raw)
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	if path == "" || path == "/dev/null" || path == "dev/null" {
		return ""
	}
	return path
}

// changedLines returns the removal and addition payloads of a diff, each
// stripped of its leading marker, with header and context lines skipped.
func changedLines(diff string) (removals, additions []string) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"),
			strings.HasPrefix(line, "@@"), strings.HasPrefix(line, "diff --git"):
		case strings.HasPrefix(line, "-"):
			removals = append(removals, line[1:])
		case strings.HasPrefix(line, "+"):
			additions = append(additions, line[1:])
		}
	}
	return removals, additions
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package patch

import (
	"fmt"
	"strings"
)

// Repair applies best-effort fixes for common diff format issues before the
// diff is handed to git apply: it synthesizes a missing `diff --git` header
// from the ---/+++ pair and normalizes the trailing newline. The change
// content is never altered.
func Repair(diff string) string {
	lines := strings.Split(diff, "\n")
	repaired := make([]string, 0, len(lines)+1)

	inHeader := true
	for i, line := range lines {
		if inHeader && i == 0 && strings.HasPrefix(line, "---") {
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "+++") {
				src := headerPath(line)
				dst := headerPath(lines[i+1])
				repaired = append(repaired, fmt.Sprintf("diff --git a/%s b/%s", src, dst))
			}
		}

		if strings.HasPrefix(line, "@@") {
			inHeader = false
		}

		repaired = append(repaired, line)
	}

	result := strings.Join(repaired, "\n")
	if !strings.HasSuffix(result, "\n") {
		result += "\n"
	}
	return result
}

// headerPath extracts the path from a "--- a/path" or "+++ b/path" line,
// stripping any tab-separated timestamp and the a// b/ prefix to avoid
// doubling it in the synthesized header.
func headerPath(line string) string {
	path := strings.TrimSpace(line[4:])
	path = strings.SplitN(path, "\t", 2)[0]
	path = strings.TrimPrefix(path, "a/")
	path = strings.TrimPrefix(path, "b/")
	return path
}

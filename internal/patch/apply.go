// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package patch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
)

// GitRunner is the black-box seam to the underlying version-control
// diff-apply primitive. Implementations apply a patch file inside workdir
// and report the tool's stderr on failure.
type GitRunner interface {
	Apply(ctx context.Context, workdir, patchPath string, args ...string) (stderr string, err error)
}

// ExecGitRunner shells out to the git binary.
type ExecGitRunner struct{}

func (ExecGitRunner) Apply(ctx context.Context, workdir, patchPath string, args ...string) (string, error) {
	cmdArgs := append([]string{"apply"}, args...)
	cmdArgs = append(cmdArgs, patchPath)

	cmd := exec.CommandContext(ctx, "git", cmdArgs...)
	cmd.Dir = workdir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// Result records a successful patch application.
type Result struct {
	// Files touched by the application, relative to the working tree root.
	Files []string
	// Method names the strategy that succeeded: git-apply, direct, or
	// structured.
	Method string
	// Summary is a human-readable one-liner for the ledger.
	Summary string
}

// Applier applies validated diffs to a working tree. Strategies are tried
// in fixed order: git apply (strict check then three-way merge), direct
// text substitution, structured per-file search/replace.
type Applier struct {
	git GitRunner
}

// NewApplier creates an Applier. A nil runner defaults to the real git
// binary.
func NewApplier(git GitRunner) *Applier {
	if git == nil {
		git = ExecGitRunner{}
	}
	return &Applier{git: git}
}

// Apply validates, repairs and applies diff against workdir. files is the
// proposal's declared file list; when empty, targets are extracted from the
// diff headers. A successful application mutates the working tree exactly
// once; the caller owns the patch-attempt budget counter.
func (a *Applier) Apply(ctx context.Context, workdir, diff string, files []string) (*Result, error) {
	if err := Validate(diff); err != nil {
		return nil, err
	}

	diff = Repair(diff)

	patchFile, err := os.CreateTemp("", "gatefix-*.patch")
	if err != nil {
		return nil, gferr.Errorf(gferr.CodePatchApplyFailure, "creating patch file: %w", err)
	}
	patchPath := patchFile.Name()
	defer os.Remove(patchPath)

	if _, err := patchFile.WriteString(diff); err != nil {
		patchFile.Close()
		return nil, gferr.Errorf(gferr.CodePatchApplyFailure, "writing patch file: %w", err)
	}
	if err := patchFile.Close(); err != nil {
		return nil, gferr.Errorf(gferr.CodePatchApplyFailure, "closing patch file: %w", err)
	}

	checkStderr, checkErr := a.git.Apply(ctx, workdir, patchPath, "--check")
	if checkErr != nil {
		slog.Warn("patch check failed, trying fallback strategies",
			"error", truncate(checkStderr, 500),
			"diff_preview", truncate(diff, 500),
		)

		if res := a.directEdit(workdir, diff); res != nil {
			return res, nil
		}
		if res := a.structuredEdit(workdir, diff, files); res != nil {
			return res, nil
		}

		return nil, gferr.Errorf(gferr.CodePatchApplyFailure,
			"patch check failed: %s", truncate(checkStderr, 200))
	}

	applyStderr, applyErr := a.git.Apply(ctx, workdir, patchPath, "--3way")
	if applyErr != nil {
		return nil, gferr.Errorf(gferr.CodePatchApplyFailure,
			"patch apply failed: %s", truncate(applyStderr, 200))
	}

	if len(files) == 0 {
		files = Files(diff)
	}
	return &Result{
		Files:   files,
		Method:  "git-apply",
		Summary: fmt.Sprintf("Patch applied successfully (%d files)", len(files)),
	}, nil
}

// directEdit applies the diff as a plain text substitution when the patch
// format itself is broken. Three sub-strategies: replace the exact removed
// block, replace removed lines individually, or insert a pure addition
// after a context line from the diff.
func (a *Applier) directEdit(workdir, diff string) *Result {
	files := Files(diff)
	if len(files) == 0 {
		return nil
	}

	removals, additions := changedLines(diff)
	if len(removals) == 0 && len(additions) == 0 {
		return nil
	}

	oldBlock := strings.Join(removals, "\n")
	newBlock := strings.Join(additions, "\n")

	for _, name := range files {
		path := filepath.Join(workdir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		original := string(content)
		modified := original

		switch {
		case oldBlock != "" && strings.Contains(modified, oldBlock):
			modified = strings.Replace(modified, oldBlock, newBlock, 1)

		case len(removals) > 0:
			for i, oldLine := range removals {
				if oldLine == "" || !strings.Contains(modified, oldLine) {
					continue
				}
				newLine := ""
				if i < len(additions) {
					newLine = additions[i]
				}
				modified = strings.Replace(modified, oldLine, newLine, 1)
			}

		case len(additions) > 0:
			// Pure insertion: anchor on a context line from the diff.
			ctxLines := contextLines(diff)
			if len(ctxLines) > 3 {
				ctxLines = ctxLines[:3]
			}
			for _, ctxLine := range ctxLines {
				anchor := strings.TrimSpace(ctxLine)
				if anchor == "" || !strings.Contains(original, anchor) {
					continue
				}
				idx := strings.Index(original, anchor) + len(anchor)
				modified = original[:idx] + "\n" + newBlock + original[idx:]
				break
			}
		}

		if modified != original {
			if err := os.WriteFile(path, []byte(modified), 0o644); err != nil {
				continue
			}
			return &Result{
				Files:   []string{name},
				Method:  "direct",
				Summary: fmt.Sprintf("Applied direct edit to %s", name),
			}
		}
	}

	return nil
}

// structuredEdit applies the diff as a per-file search/replace against the
// file named in the diff headers, falling back to fuzzy line substitution
// that preserves the target line's indentation.
func (a *Applier) structuredEdit(workdir, diff string, files []string) *Result {
	if len(files) == 0 {
		files = Files(diff)
	}
	if len(files) == 0 {
		return nil
	}

	currentFile := ""
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "--- a/") || strings.HasPrefix(line, "+++ b/") {
			currentFile = strings.SplitN(line[6:], "\t", 2)[0]
		}
	}

	removals, additions := changedLines(diff)
	if currentFile == "" || (len(removals) == 0 && len(additions) == 0) {
		return nil
	}

	path := filepath.Join(workdir, currentFile)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	original := string(content)
	modified := original
	changed := false

	if len(removals) > 0 {
		oldBlock := strings.Join(removals, "\n")
		newBlock := strings.Join(additions, "\n")

		if strings.Contains(original, oldBlock) {
			modified = strings.Replace(original, oldBlock, newBlock, 1)
			changed = true
		} else {
			for i, oldLine := range removals {
				oldStripped := strings.TrimSpace(oldLine)
				if oldStripped == "" || !strings.Contains(original, oldStripped) {
					continue
				}
				newLine := ""
				if i < len(additions) {
					newLine = additions[i]
				}
				for _, origLine := range strings.Split(original, "\n") {
					if strings.TrimSpace(origLine) == oldStripped {
						indent := origLine[:len(origLine)-len(strings.TrimLeft(origLine, " \t"))]
						modified = strings.Replace(modified, origLine, indent+strings.TrimSpace(newLine), 1)
						changed = true
						break
					}
				}
			}
		}
	}

	if changed && modified != original {
		if err := os.WriteFile(path, []byte(modified), 0o644); err != nil {
			return nil
		}
		return &Result{
			Files:   []string{currentFile},
			Method:  "structured",
			Summary: fmt.Sprintf("Applied structured edit to %s", currentFile),
		}
	}

	return nil
}

// contextLines returns the diff's plain context lines (no +/- marker, no
// header lines), used as insertion anchors.
func contextLines(diff string) []string {
	var ctxLines []string
	for _, line := range strings.Split(diff, "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "+") || strings.HasPrefix(line, "-") ||
			strings.HasPrefix(line, "@") || strings.HasPrefix(line, "diff") {
			continue
		}
		ctxLines = append(ctxLines, line)
	}
	return ctxLines
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

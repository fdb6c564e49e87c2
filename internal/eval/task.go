// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

// Package eval runs repair episodes over a batch of tasks and scores
// the outcomes. Tasks arrive as a YAML manifest pointing at already
// checked-out working trees; the runner never clones repositories.
package eval

import (
	"os"

	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Task is one repair problem: a working tree plus the issue to fix.
type Task struct {
	ID               string `yaml:"id"`
	Repo             string `yaml:"repo"`
	BaseCommit       string `yaml:"base_commit"`
	Workdir          string `yaml:"workdir"`
	Language         string `yaml:"language"`
	ProblemStatement string `yaml:"problem_statement"`
	TestCommand      string `yaml:"test_command"`
}

// Validate reports whether the task carries enough to run an episode.
func (t Task) Validate() error {
	switch {
	case t.ID == "":
		return gferr.New(gferr.CodeEvalTaskInvalid, "task missing id")
	case t.Workdir == "":
		return gferr.New(gferr.CodeEvalTaskInvalid, "task missing workdir",
			gferr.FieldTaskID(t.ID))
	case t.ProblemStatement == "":
		return gferr.New(gferr.CodeEvalTaskInvalid, "task missing problem statement",
			gferr.FieldTaskID(t.ID))
	}
	return nil
}

type manifest struct {
	Tasks []Task `yaml:"tasks"`
}

// LoadTasks reads a task manifest. Every task is validated; a single bad
// entry fails the whole load so a batch never silently shrinks.
func LoadTasks(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gferr.Wrap(err, gferr.CodeEvalManifestParse, "read task manifest",
			gferr.Field("path", path))
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, gferr.Wrap(err, gferr.CodeEvalManifestParse, "parse task manifest",
			gferr.Field("path", path))
	}
	if len(m.Tasks) == 0 {
		return nil, gferr.New(gferr.CodeEvalManifestParse, "task manifest is empty",
			gferr.Field("path", path))
	}

	seen := make(map[string]bool, len(m.Tasks))
	for _, t := range m.Tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t.ID] {
			return nil, gferr.New(gferr.CodeEvalManifestParse, "duplicate task id",
				gferr.FieldTaskID(t.ID))
		}
		seen[t.ID] = true
	}
	return m.Tasks, nil
}

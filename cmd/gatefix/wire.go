// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatefix Contributors

package main

import (
	"github.com/gatefix-dev/gatefix/internal/config"
	"github.com/gatefix-dev/gatefix/internal/learning"
	"github.com/gatefix-dev/gatefix/internal/planner"
	"github.com/gatefix-dev/gatefix/internal/provider"
	"github.com/gatefix-dev/gatefix/internal/store"
	gferr "github.com/gatefix-dev/gatefix/pkg/errors"
	"github.com/spf13/viper"
)

// components holds the wired subsystems a repair command needs.
type components struct {
	store   store.LearningStore
	bandit  *learning.Bandit
	lane    *learning.Lane
	gen     provider.Generator
	planner *planner.MetaPlanner
}

// buildComponents wires the learning store, bandit, quarantine lane,
// generator, and planner from configuration.
func buildComponents(cfg *config.Config) (*components, error) {
	c := &components{}

	if cfg.Learning.Enabled {
		st, err := store.Open(cfg.Storage.Backend, cfg.Learning.DBPath)
		if err != nil {
			return nil, err
		}
		c.store = st
		c.bandit = learning.NewBandit(st, learning.BanditOptions{
			Method:  learning.Method(cfg.Learning.Method),
			Epsilon: cfg.Learning.Epsilon,
		})
		c.lane = learning.NewLane(st, quarantinePolicy(cfg))
	}

	gen, err := provider.New(cfg.Provider.Name, provider.Config{
		Model:       cfg.Provider.Model,
		APIKey:      cfg.Provider.APIKey,
		Endpoint:    cfg.Provider.Endpoint,
		Temperature: cfg.Provider.Temperature,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.gen = gen
	c.planner = planner.New(gen, c.bandit, c.lane)
	return c, nil
}

// buildLearningOnly wires just the store-backed learning layer, for
// commands that inspect or mutate strategy statistics without a provider.
func buildLearningOnly(cfg *config.Config) (*components, error) {
	if !cfg.Learning.Enabled {
		return nil, gferr.New(gferr.CodeCLIInputInvalid, "learning is disabled in configuration")
	}
	st, err := store.Open(cfg.Storage.Backend, cfg.Learning.DBPath)
	if err != nil {
		return nil, err
	}
	return &components{
		store:  st,
		bandit: learning.NewBandit(st, learning.BanditOptions{Method: learning.Method(cfg.Learning.Method), Epsilon: cfg.Learning.Epsilon}),
		lane:   learning.NewLane(st, quarantinePolicy(cfg)),
	}, nil
}

func quarantinePolicy(cfg *config.Config) learning.QuarantinePolicy {
	p := learning.DefaultQuarantinePolicy()
	if cfg.Learning.Quarantine.MinSuccesses > 0 {
		p.MinSuccesses = cfg.Learning.Quarantine.MinSuccesses
	}
	if cfg.Learning.Quarantine.MaxRegressionRate > 0 {
		p.MaxRegressionRate = cfg.Learning.Quarantine.MaxRegressionRate
	}
	if cfg.Learning.Quarantine.MinTriesForRate > 0 {
		p.MinTriesForRate = cfg.Learning.Quarantine.MinTriesForRate
	}
	return p
}

func (c *components) Close() error {
	var errs []error
	if c.gen != nil {
		if err := c.gen.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return gferr.Join(errs...)
}

// loadConfig unmarshals from the global Viper populated by initViper, so
// flag > env > file > default precedence applies uniformly.
func loadConfig() (*config.Config, error) {
	return config.FromViper(viper.GetViper())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/store"
	sigilerr "github.com/sigil-dev/aegis/pkg/errors"
)

//go:embed seed.default.yaml
var defaultSeedYAML []byte

// seedFile is the layout of a catalog seed document.
type seedFile struct {
	Models []*store.Model `yaml:"models"`
	Tools  []*store.Tool  `yaml:"tools"`
	Agents []*store.Agent `yaml:"agents"`
	Users  []*store.User  `yaml:"users"`
}

// seedCounts reports how many entries of each kind were upserted.
type seedCounts struct {
	Models, Tools, Agents, Users int
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file.yaml]",
		Short: "Load models, tools, agents and users into the catalog",
		Long: `Upsert catalog entries from a YAML seed file. Without a file the built-in
default catalog is loaded: a dummy model, one model per backend kind, the
safety tools and two agents. Re-running a seed updates existing entries.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runSeed,
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	raw := defaultSeedYAML
	source := "built-in defaults"
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "reading seed file: %w", err)
		}
		raw, source = data, args[0]
	}

	seed, err := parseSeed(raw)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	backend, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	counts, err := applySeed(cmd.Context(), backend, seed)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d model(s), %d tool(s), %d agent(s), %d user(s) from %s\n",
		counts.Models, counts.Tools, counts.Agents, counts.Users, source)
	return err
}

// parseSeed decodes a seed document, rejecting unknown fields.
func parseSeed(raw []byte) (*seedFile, error) {
	var seed seedFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, sigilerr.Errorf(sigilerr.CodeCLIInputInvalid, "parsing seed: %w", err)
	}
	return &seed, nil
}

// applySeed upserts tools before agents so agent tool links resolve.
func applySeed(ctx context.Context, w store.CatalogWriter, seed *seedFile) (seedCounts, error) {
	var counts seedCounts
	for _, m := range seed.Models {
		if err := w.UpsertModel(ctx, m); err != nil {
			return counts, sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "seeding model %q", m.ID)
		}
		counts.Models++
	}
	for _, t := range seed.Tools {
		if err := w.UpsertTool(ctx, t); err != nil {
			return counts, sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "seeding tool %q", t.ID)
		}
		counts.Tools++
	}
	for _, a := range seed.Agents {
		if err := w.UpsertAgent(ctx, a); err != nil {
			return counts, sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "seeding agent %q", a.ID)
		}
		counts.Agents++
	}
	for _, u := range seed.Users {
		if err := w.UpsertUser(ctx, u); err != nil {
			return counts, sigilerr.Wrapf(err, sigilerr.CodeCLIInputInvalid, "seeding user %q", u.ID)
		}
		counts.Users++
	}
	return counts, nil
}

func openStore(cfg *config.Config) (store.Backend, error) {
	backend, err := store.Open(store.Config{
		Backend:         cfg.Store.Backend,
		Path:            cfg.Store.Path,
		EnabledBackends: cfg.Providers.Enabled,
	})
	if err != nil {
		return nil, sigilerr.Wrapf(err, sigilerr.CodeCLISetupFailure, "opening store")
	}
	return backend, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var unitNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// catalogManifest mirrors the on-disk catalog.json shape so the create
// command can append new units without disturbing existing entries.
type catalogManifest struct {
	Units []catalogManifestUnit `json:"units"`
}

type catalogManifestUnit struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Up      string          `json:"up"`
	Down    string          `json:"down"`
	Creates json.RawMessage `json:"creates,omitempty"`
	Drops   []string        `json:"drops,omitempty"`
}

func newCreateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new migration unit with up and down script stubs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return createUnit(opts.migrations, args[0])
		},
	}
}

func createUnit(dir, name string) error {
	if !unitNameRegex.MatchString(name) {
		return errors.Errorf("unit name must start with a letter and contain only lowercase letters, numbers, and underscores (got: %s)", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create migrations directory")
	}

	manifestPath := filepath.Join(dir, "catalog.json")
	var m catalogManifest
	raw, err := os.ReadFile(manifestPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &m); err != nil {
			return errors.Wrap(err, "failed to parse catalog manifest")
		}
	case os.IsNotExist(err):
		// First unit, start a fresh manifest.
	default:
		return errors.Wrap(err, "failed to read catalog manifest")
	}

	var nextID int64 = 1
	if len(m.Units) > 0 {
		nextID = m.Units[len(m.Units)-1].ID + 1
	}

	base := fmt.Sprintf("%04d_%s", nextID, name)
	upFile := base + ".up.sql"
	downFile := base + ".down.sql"

	upStub := fmt.Sprintf("-- %s: forward migration\n", name)
	downStub := fmt.Sprintf("-- %s: exact inverse of the forward migration\n", name)
	if err := os.WriteFile(filepath.Join(dir, upFile), []byte(upStub), 0o600); err != nil {
		return errors.Wrap(err, "failed to write up script")
	}
	if err := os.WriteFile(filepath.Join(dir, downFile), []byte(downStub), 0o600); err != nil {
		return errors.Wrap(err, "failed to write down script")
	}

	m.Units = append(m.Units, catalogManifestUnit{
		ID:   nextID,
		Name: name,
		Up:   upFile,
		Down: downFile,
	})

	encoded, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode catalog manifest")
	}
	if err := os.WriteFile(manifestPath, append(encoded, '\n'), 0o600); err != nil {
		return errors.Wrap(err, "failed to write catalog manifest")
	}

	fmt.Printf("created migration unit %d (%s)\n", nextID, name)
	fmt.Printf("  %s\n  %s\n", filepath.Join(dir, upFile), filepath.Join(dir, downFile))
	fmt.Println("fill in the scripts and declare created objects in catalog.json for schema validation")
	return nil
}

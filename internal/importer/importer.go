// Package importer drives the history walk and persists each newly
// discovered orchestrated build exactly once.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"prodcon/internal/domain"
	"prodcon/internal/gitwalk"
	"prodcon/internal/manifest"
	"prodcon/internal/normalize"
)

// Store is the persistence the importer needs. SaveOrchestratedBuild must
// be atomic: either the whole graph becomes visible or none of it.
type Store interface {
	HasOrchestratedBuild(ctx context.Context, id string) (bool, error)
	SaveOrchestratedBuild(ctx context.Context, b *domain.OrchestratedBuild) error
}

type Importer struct {
	Source   gitwalk.Source
	Store    Store
	RootPath string
	Log      *slog.Logger
}

// Result summarizes one run.
type Result struct {
	// Imported counts builds persisted by this run.
	Imported int `json:"imported"`
	// Skipped counts manifests whose build was already recorded, either
	// earlier in this run or by a previous run.
	Skipped int `json:"skipped"`
	// Malformed counts manifests that could not be parsed and were
	// passed over.
	Malformed int `json:"malformed"`
}

// Run walks every commit once and imports each orchestrated build the
// first time its identifier is seen. Most commits do not touch manifests
// and reproduce the previous commit's content, so the per-run seen set
// does most of the skipping; the store check catches builds imported by
// earlier runs. Re-running over the same history is safe and writes
// nothing new.
//
// A manifest that fails to parse is logged and skipped; storage and
// repository errors abort the run.
func (im *Importer) Run(ctx context.Context) (Result, error) {
	log := im.Log
	if log == nil {
		log = slog.Default()
	}

	seen := make(map[string]struct{})
	var res Result
	err := gitwalk.Walk(ctx, im.Source, im.RootPath, func(m gitwalk.Manifest) error {
		ob, err := loadManifest(m)
		if err != nil {
			if errors.Is(err, manifest.ErrMalformed) || errors.Is(err, manifest.ErrInvalidValue) {
				log.Warn("skipping manifest", "commit", m.Commit, "branch", m.Branch, "err", err)
				res.Malformed++
				return nil
			}
			return err
		}
		id := ob.OrchestratedBuildID
		if _, ok := seen[id]; ok {
			res.Skipped++
			return nil
		}
		exists, err := im.Store.HasOrchestratedBuild(ctx, id)
		if err != nil {
			return fmt.Errorf("check %s: %w", id, err)
		}
		if exists {
			res.Skipped++
			return nil
		}
		if err := im.Store.SaveOrchestratedBuild(ctx, ob); err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
		seen[id] = struct{}{}
		res.Imported++
		log.Info("imported build", "id", id, "commit", m.Commit)
		return nil
	})
	return res, err
}

func loadManifest(m gitwalk.Manifest) (*domain.OrchestratedBuild, error) {
	doc, err := manifest.Parse(m.Text)
	if err != nil {
		return nil, err
	}
	return normalize.Load(doc, m.Branch)
}

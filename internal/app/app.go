// Package app wires the storage layer, mergers, and workers into a running
// store instance.
package app

import (
	"context"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/config"
	"github.com/anyamene/pamojastore/internal/db"
	"github.com/anyamene/pamojastore/internal/deletes"
	"github.com/anyamene/pamojastore/internal/models"
	syncpkg "github.com/anyamene/pamojastore/internal/sync"
)

// App holds the assembled store components.
type App struct {
	Config *config.Config
	DB     *db.DB
	Log    *logrus.Entry

	Changes    *db.ChangeLogStore
	Tombstones *db.TombstoneStore
	Documents  *db.DocumentStore

	Projects   *db.ProjectRepo
	Funding    *db.FundingRepo
	Workshops  *db.WorkshopRepo
	Activities *db.ActivityRepo

	Registry     *syncpkg.Registry
	Orchestrator *syncpkg.Orchestrator
	Deletes      *deletes.Service
	FileWorker   *deletes.FileWorker

	cancelWorker context.CancelFunc
}

// New opens the database, runs migrations, and wires every component.
func New(cfg *config.Config) (*App, error) {
	log := logrus.WithField("device_id", cfg.DeviceID)

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open database")
	}
	if err := db.NewMigrator(database).Up(); err != nil {
		_ = database.Close()
		return nil, pkgerrors.Wrap(err, "run migrations")
	}

	changes := db.NewChangeLogStore(database)
	tombstones := db.NewTombstoneStore(database)
	documents := db.NewDocumentStore(database)

	funding := db.NewFundingRepo(database, changes, tombstones)
	workshops := db.NewWorkshopRepo(database, changes, tombstones)
	activities := db.NewActivityRepo(database, changes, tombstones)

	deleteSvc := deletes.NewService(database, changes, tombstones, documents, log)

	registry := syncpkg.NewRegistry(
		syncpkg.NewFundingMerger(funding, tombstones, deleteSvc),
		syncpkg.NewWorkshopMerger(workshops, tombstones, deleteSvc),
		syncpkg.NewActivityMerger(activities, tombstones, deleteSvc),
	)

	return &App{
		Config:       cfg,
		DB:           database,
		Log:          log,
		Changes:      changes,
		Tombstones:   tombstones,
		Documents:    documents,
		Projects:     db.NewProjectRepo(database),
		Funding:      funding,
		Workshops:    workshops,
		Activities:   activities,
		Registry:     registry,
		Orchestrator: syncpkg.NewOrchestrator(database, registry, cfg.Sync.StrictAtomicity, log),
		Deletes:      deleteSvc,
		FileWorker:   deletes.NewFileWorker(documents, cfg.FileWorkerInterval(), log),
	}, nil
}

// DeviceID returns this device's identity.
func (a *App) DeviceID() models.UUID {
	return models.UUID(a.Config.DeviceID)
}

// StartWorkers launches background workers. Stop them with Close.
func (a *App) StartWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelWorker = cancel
	go a.FileWorker.Run(ctx)
}

// Close stops workers and closes the database.
func (a *App) Close() error {
	if a.cancelWorker != nil {
		a.cancelWorker()
	}
	return a.DB.Close()
}

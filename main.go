package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/galenelijah/USC-PIS-sub001/pkg/adminserver"
	"github.com/galenelijah/USC-PIS-sub001/pkg/api"
	"github.com/galenelijah/USC-PIS-sub001/pkg/backup"
	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
	"github.com/galenelijah/USC-PIS-sub001/pkg/restore"
	"github.com/galenelijah/USC-PIS-sub001/pkg/scheduler"
	"github.com/galenelijah/USC-PIS-sub001/pkg/storage/local"
	"github.com/galenelijah/USC-PIS-sub001/pkg/storage/s3"
	"github.com/galenelijah/USC-PIS-sub001/pkg/version"
)

func main() {
	log.Println("Starting USC-PIS backup service...")
	log.Println(version.Info())

	config.LoadConfiguration()
	if err := config.ValidateConfig(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	if config.CFG.Debug {
		log.Println("Configuration loaded and validated successfully")
	}

	if err := metadata.Initialize(); err != nil {
		log.Fatalf("Failed to initialize metadata store: %v", err)
	}

	storage, err := local.NewClient(config.CFG.Storage.BackupDirectory, config.CFG.Storage.UploadDirectory)
	if err != nil {
		log.Fatalf("Failed to initialize archive storage: %v", err)
	}

	repo, err := buildRepository()
	if err != nil {
		log.Fatalf("Failed to initialize records repository: %v", err)
	}
	mediaSource := media.NewDirSource(config.CFG.Storage.MediaDirectory)

	var offsite backup.OffsiteStore
	if config.CFG.S3.Enabled {
		client, err := s3.NewClient()
		if err != nil {
			log.Fatalf("Failed to initialize S3 offsite storage: %v", err)
		}
		offsite = client
	}

	store := metadata.DefaultStore
	manager := backup.NewManager(store, repo, mediaSource, storage, offsite)
	planner := restore.NewPlanner(store, repo, storage)
	executor := restore.NewExecutor(store, repo, mediaSource, storage)

	sched := scheduler.NewScheduler(store, manager)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	admin := adminserver.NewServer(store)
	admin.Start()

	setupSignalHandling(sched, admin)

	server := api.NewServer(store, manager, sched, planner, executor)
	if err := server.Start(config.CFG.APIPort); err != nil {
		log.Fatalf("API server exited: %v", err)
	}
}

// buildRepository connects to the host application's database, or falls
// back to an in-memory repository when no records database is configured.
func buildRepository() (records.Repository, error) {
	if !config.CFG.RecordsDB.Enabled {
		log.Println("Records database is not enabled, using in-memory repository")
		return records.NewMemoryRepository(), nil
	}

	db, err := records.ConnectRecordsDB()
	if err != nil {
		return nil, err
	}
	return records.NewDBRepository(db, config.CFG.Snapshot.Models), nil
}

// setupSignalHandling stops the scheduler and admin server cleanly on
// SIGINT or SIGTERM.
func setupSignalHandling(sched *scheduler.Scheduler, admin *adminserver.Server) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-c
		log.Printf("Received signal %s, shutting down...", sig)
		sched.Stop()
		if err := admin.Stop(); err != nil {
			log.Printf("Failed to stop admin server: %v", err)
		}
		if err := metadata.DefaultStore.Save(); err != nil {
			log.Printf("Failed to persist metadata on shutdown: %v", err)
		}
		os.Exit(0)
	}()
}

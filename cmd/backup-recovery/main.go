// backup-recovery is a command-line tool to reconcile backup metadata after
// a crash: backups stuck in a running state are marked failed, and entries
// whose archive file disappeared are flagged.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/galenelijah/USC-PIS-sub001/pkg/config"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

var (
	dryRun       = flag.Bool("dry-run", false, "Report what would change without writing metadata")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	olderThan    = flag.Duration("older-than", time.Hour, "Only fail running backups started at least this long ago")
	pruneMissing = flag.Bool("prune-missing", false, "Mark completed backups whose archive file is missing as failed")
)

func main() {
	flag.Parse()

	config.LoadConfiguration()

	if err := metadata.Initialize(); err != nil {
		log.Fatalf("Failed to initialize metadata: %v", err)
	}

	backups := metadata.DefaultStore.GetBackups()
	if len(backups) == 0 {
		log.Println("No backups in metadata, nothing to do")
		os.Exit(0)
	}

	failed := failStuckBackups(backups)

	var pruned int
	if *pruneMissing {
		pruned = pruneMissingArchives(backups)
	}

	log.Println("\nRecovery summary:")
	log.Printf("- Backups examined: %d", len(backups))
	log.Printf("- Stuck backups failed: %d", failed)
	if *pruneMissing {
		log.Printf("- Missing archives flagged: %d", pruned)
	}

	if *dryRun {
		log.Println("Dry run completed - no changes were saved")
		return
	}
	if err := metadata.DefaultStore.Save(); err != nil {
		log.Fatalf("Failed to save metadata: %v", err)
	}
	log.Println("Metadata saved successfully")
}

// failStuckBackups marks pending or running backups older than the cutoff
// as failed. These are left behind when the service crashes mid-backup and
// would otherwise block their backup type forever.
func failStuckBackups(backups []types.Backup) int {
	cutoff := time.Now().Add(-*olderThan)
	count := 0

	for _, b := range backups {
		if b.Status.Terminal() {
			continue
		}

		startedAt := b.CreatedAt
		if b.StartedAt != nil {
			startedAt = *b.StartedAt
		}
		if startedAt.After(cutoff) {
			if *verbose {
				log.Printf("Skipping %s backup %s: started %s, within the cutoff window",
					b.BackupType, b.ID, humanize.Time(startedAt))
			}
			continue
		}

		log.Printf("Failing %s %s backup %s (started %s)",
			b.Status, b.BackupType, b.ID, humanize.Time(startedAt))
		count++

		if *dryRun {
			continue
		}
		markFailed(b, fmt.Sprintf("marked failed by backup-recovery: stuck in %s state since %s",
			b.Status, startedAt.Format(time.RFC3339)))
	}

	return count
}

// pruneMissingArchives flags completed backups whose archive file no longer
// exists on disk, so restores do not trip over them.
func pruneMissingArchives(backups []types.Backup) int {
	count := 0

	for _, b := range backups {
		if b.Status != types.StatusSuccess || b.StorageLocation == "" {
			continue
		}
		if _, err := os.Stat(b.StorageLocation); err == nil {
			continue
		}

		log.Printf("Archive for %s backup %s is missing: %s", b.BackupType, b.ID, b.StorageLocation)
		count++

		if *dryRun {
			continue
		}
		markFailed(b, "archive file is missing from storage")
	}

	return count
}

func markFailed(b types.Backup, reason string) {
	now := time.Now()
	b.Status = types.StatusFailed
	b.CompletedAt = &now
	b.ErrorMessage = reason
	b.Verified = false
	if err := metadata.DefaultStore.UpdateBackup(&b); err != nil {
		log.Printf("Failed to update backup %s: %v", b.ID, err)
	}
}

package deletes

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/anyamene/pamojastore/internal/db"
)

// FileWorker drains the pending file deletion queue in the background.
// Database rows disappear inside their delete transaction; the bytes on disk
// go later, here, so a crash between the two never orphans the database.
type FileWorker struct {
	documents *db.DocumentStore
	interval  time.Duration
	batchSize int
	log       *logrus.Entry
}

// NewFileWorker creates a FileWorker polling at the given interval.
func NewFileWorker(documents *db.DocumentStore, interval time.Duration, log *logrus.Entry) *FileWorker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &FileWorker{
		documents: documents,
		interval:  interval,
		batchSize: 100,
		log:       log,
	}
}

// Run processes the queue until ctx is cancelled. Call it in a goroutine.
func (w *FileWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.DrainOnce(); err != nil {
				w.log.WithError(err).Warn("file deletion pass failed")
			}
		}
	}
}

// DrainOnce processes one batch of queued deletions. A file that is already
// gone counts as done; other removal failures stay queued with their attempt
// counter bumped.
func (w *FileWorker) DrainOnce() error {
	pending, err := w.documents.PendingDeletions(w.batchSize)
	if err != nil {
		return err
	}
	for _, p := range pending {
		err := os.Remove(p.FilePath)
		if err != nil && !os.IsNotExist(err) {
			w.log.WithFields(logrus.Fields{
				"path":     p.FilePath,
				"attempts": p.Attempts + 1,
			}).WithError(err).Warn("could not remove file")
			if err := w.documents.BumpDeletionAttempt(p.ID); err != nil {
				return err
			}
			continue
		}
		if err := w.documents.ResolveDeletion(p.ID); err != nil {
			return err
		}
	}
	return nil
}

package ingest

import (
	"log/slog"

	"github.com/starford/munin/internal/drops"
	"github.com/starford/munin/internal/fingerprint"
	"github.com/starford/munin/internal/ledger"
)

// Sweep walks the drop folder and enqueues every file the journal does
// not record as ingested with its current content. It runs once at
// startup so files dropped while the daemon was down are not lost, and
// previously failed drops get another chance after the operator fixed
// whatever blocked them.
func Sweep(provider drops.Provider, journal *ledger.Ledger, q Queue, logger *slog.Logger) error {
	infos, err := provider.List()
	if err != nil {
		return err
	}

	queued := 0
	for _, info := range infos {
		data, readErr := provider.Read(info.Path)
		if readErr != nil {
			logger.Warn("sweep: read failed",
				slog.String("path", info.Path),
				slog.String("error", readErr.Error()))
			continue
		}
		fp := fingerprint.Sum(data)

		ingested, jerr := journal.IsIngested(info.Path, fp)
		if jerr != nil {
			logger.Warn("sweep: journal lookup failed",
				slog.String("path", info.Path),
				slog.String("error", jerr.Error()))
			continue
		}
		if ingested {
			logger.Debug("sweep: already ingested", slog.String("path", info.Path))
			continue
		}

		q.Enqueue(Event{Path: info.Path, Op: OpWrite})
		queued++
	}

	logger.Info("sweep: completed",
		slog.Int("seen", len(infos)),
		slog.Int("queued", queued))
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sweeney/presence-meter/internal/logic"
	"github.com/sweeney/presence-meter/internal/source"
)

// DefaultBackoff is the pause after an unexpected read error.
const DefaultBackoff = 50 * time.Millisecond

// IngestConfig configures the ingestion goroutine.
type IngestConfig struct {
	Parser logic.ParserConfig
	// Origin labels queued items (usually the source kind).
	Origin string
	// LogAllLines logs every received line and every unrecognized line at debug level.
	LogAllLines bool
	Backoff     time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Ingest reads lines from src, parses them and queues the results until the
// source closes or ctx is cancelled. It returns nil on orderly shutdown.
func Ingest(ctx context.Context, src source.Source, cfg IngestConfig, q *Queue, logger *slog.Logger) error {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := src.ReadLine()
		switch {
		case err == nil:
		case errors.Is(err, source.ErrTimeout):
			continue
		case errors.Is(err, source.ErrClosed):
			logger.Info("line source closed")
			return nil
		case errors.Is(err, source.ErrLineTooLong):
			logger.Warn("overlong line dropped")
			continue
		default:
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("line source read failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}

		t := now()
		if cfg.LogAllLines {
			logger.Debug("line received", "line", line)
		}

		res := logic.ParseLine(line, cfg.Parser, t)
		switch res.Kind {
		case logic.ParseLegacy:
			q.Push(Item{Kind: ItemLegacy, Time: t, Origin: cfg.Origin})
		case logic.ParseKeyValue, logic.ParseSingle:
			items := make([]Item, len(res.Readings))
			for i, r := range res.Readings {
				items[i] = Item{Kind: ItemReading, Reading: r, Time: t, Origin: cfg.Origin}
			}
			q.Push(items...)
		case logic.ParseUnrecognized:
			if cfg.LogAllLines {
				logger.Debug("unrecognized line", "line", line)
			}
		}
	}
}

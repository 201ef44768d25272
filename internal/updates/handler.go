package updates

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/valueindex/internal/valueindex"
	apperr "github.com/Adithya-Monish-Kumar-K/valueindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/resilience"
)

// NewHandler returns a consumer callback that applies batches for document
// to idx. Messages keyed for another document are skipped, and undecodable
// ones are dropped so they do not block the partition.
func NewHandler(document string, idx *valueindex.Updatable, m *metrics.Metrics) kafka.MessageHandler {
	log := logger.WithComponent("update-feed").With("document", document)
	return func(ctx context.Context, key, value []byte) error {
		if len(key) > 0 && string(key) != document {
			m.UpdateBatch("skipped")
			return nil
		}
		b, err := kafka.DecodeJSON[Batch](value)
		if err == nil {
			err = b.Validate()
		}
		if err != nil {
			log.Warn("dropping malformed batch", "error", err)
			m.UpdateBatch("invalid")
			return nil
		}

		start := time.Now()
		var st Stats
		err = resilience.Retry(ctx, "apply update batch", resilience.RetryConfig{}, func() error {
			var applyErr error
			st, applyErr = Apply(ctx, idx, b)
			return applyErr
		})
		if err != nil {
			status := "failed"
			if apperr.Is(err, apperr.ErrCancelled) {
				status = "cancelled"
			}
			m.UpdateBatch(status)
			return err
		}
		m.UpdateBatch("ok")
		log.Debug("batch applied",
			slog.Int("deleted", st.Deleted),
			slog.Int("keys_removed", st.KeysRemoved),
			slog.Int("replaced", st.Replaced),
			slog.Int("inserted", st.Inserted),
			slog.Duration("took", time.Since(start)),
		)
		return nil
	}
}

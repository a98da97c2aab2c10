package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"hsg/internal/hsg/hsgerr"
	"hsg/internal/hsg/sector"
	"hsg/internal/hsg/types"
)

// LogSink records EmbedLog transitions. Implemented by the memory store;
// kept as a narrow interface here so the embedder package has no storage
// dependency.
type LogSink interface {
	InsertLog(ctx context.Context, log types.EmbedLog) error
	UpdateLog(ctx context.Context, id string, status types.EmbedLogStatus, errMsg string) error
}

// EmbedMultiSector embeds text once per sector in sectors, writing a
// pending/completed/failed EmbedLog row around the batch. Per-sector embeds
// fan out concurrently via errgroup, in the manner the ambient stack already
// uses for other parallel stage fan-outs (§5); a single sector's failure is
// recorded but does not abort the remaining sectors, and if every sector
// fails the aggregate error is an EmbedFailure.
func EmbedMultiSector(ctx context.Context, emb Embedder, logs LogSink, memoryID, text string, sectors []sector.Sector) ([]types.SectorVector, error) {
	logID := uuid.NewString()
	if logs != nil {
		_ = logs.InsertLog(ctx, types.EmbedLog{ID: logID, Model: emb.Name(), Status: types.EmbedLogPending, Ts: nowMillis()})
	}

	vectors := make([]types.SectorVector, len(sectors))
	errs := make([]error, len(sectors))
	var mu sync.Mutex
	var lastErr error

	g, gctx := errgroup.WithContext(ctx)
	for i, sec := range sectors {
		i, sec := i, sec
		g.Go(func() error {
			vec, err := emb.EmbedText(gctx, text, sec)
			if err != nil {
				mu.Lock()
				errs[i] = err
				lastErr = err
				mu.Unlock()
				return nil
			}
			vectors[i] = types.SectorVector{Sector: sec, Vector: vec, Dim: len(vec)}
			return nil
		})
	}
	_ = g.Wait() // per-sector errors are recorded in errs, never aborts siblings

	results := make([]types.SectorVector, 0, len(sectors))
	for i, v := range vectors {
		if errs[i] == nil {
			results = append(results, v)
		}
	}

	if len(results) == 0 {
		// A cancelled context surfaces as its own error class (§4.15/§5)
		// rather than an ordinary EmbedFailure.
		if ctx.Err() != nil || errors.Is(lastErr, context.Canceled) {
			cancelErr := hsgerr.CancelledErr(lastErr)
			if logs != nil {
				_ = logs.UpdateLog(ctx, logID, types.EmbedLogFailed, cancelErr.Error())
			}
			return nil, cancelErr
		}
		if logs != nil {
			_ = logs.UpdateLog(ctx, logID, types.EmbedLogFailed, errString(lastErr))
		}
		return nil, hsgerr.EmbedFail(fmt.Sprintf("all %d sector embeds failed for memory %s", len(sectors), memoryID), lastErr)
	}

	if logs != nil {
		_ = logs.UpdateLog(ctx, logID, types.EmbedLogCompleted, "")
	}
	return results, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

package storage

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Recorder writes one run to a Store. A nil Recorder, or one whose run could
// not be created, ignores every call; write failures are logged and dropped so
// a broken database never fails a demo.
type Recorder struct {
	store *Store
	runID int64
}

// NewRecorder opens dbPath and starts a run. An empty path disables recording.
func NewRecorder(ctx context.Context, dbPath string, run RunRecord) *Recorder {
	if strings.TrimSpace(dbPath) == "" {
		return nil
	}
	store, err := Open(dbPath)
	if err != nil {
		log.Warn().Err(err).Str("path", dbPath).Msg("recorder disabled")
		return nil
	}
	rec, err := StartRun(ctx, store, run)
	if err != nil {
		log.Warn().Err(err).Msg("recorder disabled")
		_ = store.Close()
		return nil
	}
	return rec
}

// StartRun creates a run on an open store.
func StartRun(ctx context.Context, store *Store, run RunRecord) (*Recorder, error) {
	id, err := store.CreateRun(ctx, run)
	if err != nil {
		return nil, err
	}
	return &Recorder{store: store, runID: id}, nil
}

func (r *Recorder) RunID() int64 {
	if r == nil {
		return 0
	}
	return r.runID
}

func (r *Recorder) Metric(ctx context.Context, m MetricRecord) {
	if r == nil {
		return
	}
	m.RunID = r.runID
	if err := r.store.InsertMetric(ctx, m); err != nil {
		log.Warn().Err(err).Str("code", m.Code).Msg("record metric failed")
	}
}

// Finish marks the run done, or failed when runErr is set.
func (r *Recorder) Finish(ctx context.Context, calls int, runErr error) {
	if r == nil {
		return
	}
	status := StatusDone
	if runErr != nil {
		status = StatusError
	}
	if err := r.store.FinishRun(ctx, r.runID, status, calls); err != nil {
		log.Warn().Err(err).Int64("run", r.runID).Msg("record run status failed")
	}
}

func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	return r.store.Close()
}

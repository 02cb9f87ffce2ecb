package contracts

import "time"

// PipelineKind identifies which orchestrator owns an ingestion cursor.
type PipelineKind string

const (
	PipelineBackfill PipelineKind = "backfill"
	PipelinePoller   PipelineKind = "poller"
)

// IngestionCursor is a monotonic watermark marking the last fully-processed
// boundary for a (pipeline, key) pair. Watermarks never move backwards
// except by an explicit operator reset.
type IngestionCursor struct {
	Pipeline  PipelineKind `json:"pipeline"`
	Key       string       `json:"key"` // ticker for backfills, source for pollers
	Watermark time.Time    `json:"watermark"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// RunKind classifies why a fan-out run was started.
type RunKind string

const (
	RunKindDaily    RunKind = "daily"
	RunKindBackfill RunKind = "backfill"
	RunKindQuery    RunKind = "query"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	switch k {
	case RunKindDaily, RunKindBackfill, RunKindQuery:
		return true
	}
	return false
}

// Package types defines the shared persisted record shapes used across the
// memory store, waypoint graph, decay engine, and retrieval engine.
package types

import "hsg/internal/hsg/sector"

// Memory is a single stored memory record.
type Memory struct {
	ID            string
	UserID        string
	Segment       int
	Content       string
	Summary       string
	SimHash       string
	PrimarySector sector.Sector
	Sectors       []sector.Sector
	Tags          []string
	Meta          map[string]any
	CreatedAt     int64
	UpdatedAt     int64
	LastSeenAt    int64
	Salience      float64
	DecayLambda   float64
	Version       int
	MeanDim       int
	MeanVec       []float32
	CompressedVec []float32
	FeedbackScore float64
}

// Vector is a per-(memory, sector) dense embedding row.
type Vector struct {
	MemoryID string
	UserID   string
	Sector   sector.Sector
	Vector   []float32
	Dim      int
}

// Waypoint is a directed weighted edge between two memories.
type Waypoint struct {
	ID        string
	SrcID     string
	DstID     string
	UserID    string
	Weight    float64
	CreatedAt int64
	UpdatedAt int64
}

// EmbedLogStatus is one of the monotonic EmbedLog states.
type EmbedLogStatus string

const (
	EmbedLogPending   EmbedLogStatus = "pending"
	EmbedLogCompleted EmbedLogStatus = "completed"
	EmbedLogFailed    EmbedLogStatus = "failed"
)

// EmbedLog is an append-only audit row for an embedding call.
type EmbedLog struct {
	ID     string
	Model  string
	Status EmbedLogStatus
	Ts     int64
	Err    string
}

// User is the derived per-user summary row.
type User struct {
	UserID          string
	Summary         string
	ReflectionCount int
	CreatedAt       int64
	UpdatedAt       int64
}

// TemporalFact is a bitemporal subject-predicate-object statement.
type TemporalFact struct {
	ID          string
	Subject     string
	Predicate   string
	Object      string
	ValidFrom   int64
	ValidTo     *int64
	Confidence  float64
	LastUpdated int64
	Metadata    map[string]any
}

// TemporalEdge links two temporal facts.
type TemporalEdge struct {
	ID           string
	SourceID     string
	TargetID     string
	RelationType string
	ValidFrom    int64
	ValidTo      *int64
	Weight       float64
	Metadata     map[string]any
}

// TimelineEntry is one event in a subject/predicate timeline.
type TimelineEntry struct {
	Timestamp  int64
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
	ChangeType string // "created" | "invalidated"
}

// AddResult is returned by the memory.add operation.
type AddResult struct {
	ID            string
	PrimarySector sector.Sector
	Sectors       []sector.Sector
	Chunks        int
	Salience      float64
	Deduplicated  bool
}

// ScoredMemory is a single ranked search result.
type ScoredMemory struct {
	ID            string
	Content       string
	Score         float64
	PrimarySector sector.Sector
	Path          []string
	Salience      float64
	LastSeenAt    int64
	Tags          []string
	Metadata      map[string]any
	Debug         map[string]any
}

// SectorVector is one sector's embedding result from embed_multi_sector.
type SectorVector struct {
	Sector sector.Sector
	Vector []float32
	Dim    int
}

// SearchFilters narrows a retrieval call.
type SearchFilters struct {
	Sectors     []sector.Sector
	MinSalience float64
	UserID      string
	StartTime   int64
	EndTime     int64
	Debug       bool
}

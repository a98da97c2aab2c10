package analytics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinkAcceptsRecords(t *testing.T) {
	s := NewNoop()
	require.NoError(t, s.RecordDecayPass(context.Background(), DecayPassRecord{SegmentID: "seg-0"}))
	require.NoError(t, s.RecordRetrieval(context.Background(), RetrievalRecord{UserID: "u1"}))
	require.NoError(t, s.Close())
}

func TestNewClickHouseEmptyDSNIsNoop(t *testing.T) {
	s, err := NewClickHouse(context.Background(), "")
	require.NoError(t, err)
	assert.IsType(t, noopSink{}, s)
}

package eventsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSinkDiscards(t *testing.T) {
	s := NewNoop()
	err := s.Publish(context.Background(), Event{Type: EventMemoryAdded, MemoryID: "m1"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewKafkaWithoutBrokersIsNoop(t *testing.T) {
	s := NewKafka(nil, "hsg-events")
	assert.IsType(t, noopSink{}, s)
}

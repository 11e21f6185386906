package kafka

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/salonkit/workflowd/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokers(t *testing.T) {
	tests := []struct {
		name     string
		env      string
		expected []string
		wantErr  bool
	}{
		{name: "single", env: "localhost:9092", expected: []string{"localhost:9092"}},
		{name: "list with spaces", env: "k1:9092, k2:9092,", expected: []string{"k1:9092", "k2:9092"}},
		{name: "empty", env: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("KAFKA_BROKERS", tt.env)

			brokers, err := Brokers()
			if tt.wantErr {
				require.ErrorIs(t, err, ErrNoBrokers)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, brokers)
		})
	}
}

func TestPartitionKey(t *testing.T) {
	msg := message.NewMessage("id", nil)
	msg.Metadata.Set(events.EventMetadataKey, events.CustomerKey("shop-1", "c1"))

	key, err := PartitionKey(events.Topic, msg)
	require.NoError(t, err)
	assert.Equal(t, "shop-1:c1", key)
}

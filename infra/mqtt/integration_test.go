package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/groundsched/internal/testutil"
)

// TestIntegration publishes a mutation to a real Mosquitto broker and reads
// the retained schedule back.
func TestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	if !testutil.DockerAvailable() {
		t.Skip("docker not available")
	}
	broker, cleanup, err := testutil.StartMosquitto(context.Background())
	require.NoError(t, err)
	defer cleanup()

	pub, err := NewSchedulePublisher(Config{Broker: broker, ClientID: "groundsched-test", TopicPrefix: "gs-it", QoS: 1})
	require.NoError(t, err)
	defer pub.Disconnect()
	require.NoError(t, pub.PublishMutation(sampleMutation()))

	got := make(chan ScheduleMessage, 1)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("groundsched-reader")
	reader := paho.NewClient(opts)
	tok := reader.Connect()
	require.True(t, tok.WaitTimeout(5*time.Second))
	require.NoError(t, tok.Error())
	defer reader.Disconnect(100)
	sub := reader.Subscribe("gs-it/schedule", 1, func(_ paho.Client, msg paho.Message) {
		var m ScheduleMessage
		if err := json.Unmarshal(msg.Payload(), &m); err == nil {
			got <- m
		}
	})
	require.True(t, sub.WaitTimeout(5*time.Second))

	select {
	case m := <-got:
		assert.Equal(t, uint64(4), m.Version)
		require.Len(t, m.Schedule, 1)
		assert.Equal(t, "pass-a", m.Schedule[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("retained schedule not received")
	}
}

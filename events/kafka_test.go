package events

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/casper-member-portal/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() interfaces.NodeVerifiedEvent {
	return interfaces.NodeVerifiedEvent{
		AccountID:  uuid.MustParse("3f1c6c1e-8a43-4d8c-9d64-2f7a1b0b9e01"),
		PublicKey:  "01aa",
		SignedFile: "signed_file/3f1c6c1e-8a43-4d8c-9d64-2f7a1b0b9e01/signature",
		VerifiedAt: time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestNodeVerifiedRecord(t *testing.T) {
	event := testEvent()
	record, err := nodeVerifiedRecord("topic", event)
	require.NoError(t, err)

	assert.Equal(t, "topic", record.Topic)
	assert.Equal(t, event.AccountID.String(), string(record.Key))
	require.Len(t, record.Headers, 1)
	assert.Equal(t, EventTypeNodeVerified, string(record.Headers[0].Value))
	assert.Equal(t, event.VerifiedAt, record.Timestamp)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(record.Value, &decoded))
	assert.Equal(t, event.AccountID.String(), decoded["account_id"])
	assert.Equal(t, event.SignedFile, decoded["signed_file"])
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, p.PublishNodeVerified(context.Background(), testEvent()))
	assert.True(t, strings.Contains(buf.String(), "account_id=3f1c6c1e-8a43-4d8c-9d64-2f7a1b0b9e01"))
}

func TestKafkaPublisher(t *testing.T) {
	brokers := os.Getenv("TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
	}

	p, err := NewKafkaPublisher(strings.Split(brokers, ","), slog.Default(), WithTopic("member-portal-test"))
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Ping(ctx))
	assert.NoError(t, p.PublishNodeVerified(ctx, testEvent()))
}

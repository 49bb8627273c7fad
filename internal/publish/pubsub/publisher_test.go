package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type runSummary struct {
	State    string `json:"state"`
	Agencies int    `json:"agencies"`
}

// newFakeClient connects a client to an in-process Pub/Sub server.
func newFakeClient(t *testing.T) *pubsub.Client {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "agency-atlas", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client
}

func TestPublishRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client := newFakeClient(t)

	topic, err := client.CreateTopic(ctx, "npidb.runs")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "runs-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	pub, err := NewWithClient(client)
	require.NoError(t, err)

	id, err := pub.Publish(ctx, "npidb.runs", runSummary{State: "NC", Agencies: 12})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got := make(chan *pubsub.Message, 1)
	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()
	go func() {
		_ = sub.Receive(rctx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			select {
			case got <- msg:
			default:
			}
			rcancel()
		})
	}()

	select {
	case msg := <-got:
		var decoded runSummary
		require.NoError(t, json.Unmarshal(msg.Data, &decoded))
		require.Equal(t, runSummary{State: "NC", Agencies: 12}, decoded)
	case <-time.After(10 * time.Second):
		t.Fatal("published message never arrived")
	}

	require.NoError(t, pub.Close())
}

func TestPublishReusesTopicHandles(t *testing.T) {
	t.Parallel()

	pub, err := NewWithClient(newFakeClient(t))
	require.NoError(t, err)

	first := pub.topic("npidb.runs")
	second := pub.topic("npidb.runs")
	require.Same(t, first, second)
	require.NotSame(t, first, pub.topic("npidb.events"))
}

func TestPublishUnknownTopicFails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pub, err := NewWithClient(newFakeClient(t))
	require.NoError(t, err)

	_, err = pub.Publish(ctx, "never-created", runSummary{State: "NC"})
	require.ErrorContains(t, err, "publish message")
}

func TestPublishValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := New(ctx, "")
	require.ErrorContains(t, err, "project id is required")

	_, err = NewWithClient(nil)
	require.ErrorContains(t, err, "pubsub client is required")

	pub, err := NewWithClient(newFakeClient(t))
	require.NoError(t, err)

	_, err = pub.Publish(ctx, "", runSummary{})
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(ctx, "npidb.runs", func() {})
	require.ErrorContains(t, err, "marshal payload")

	var unset *Publisher
	_, err = unset.Publish(ctx, "npidb.runs", runSummary{})
	require.ErrorContains(t, err, "not configured")
}

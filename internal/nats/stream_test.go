package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"

	"github.com/support-chat/support-agent/internal/model"
)

type fakeJetStream struct {
	jetstream.JetStream

	subject   string
	data      []byte
	opts      int
	pubErr    error
	streamErr error
	created   *jetstream.StreamConfig
}

func (f *fakeJetStream) Publish(_ context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.subject = subject
	f.data = data
	f.opts = len(opts)
	if f.pubErr != nil {
		return nil, f.pubErr
	}
	return &jetstream.PubAck{Stream: StreamName, Sequence: 1}, nil
}

func (f *fakeJetStream) Stream(_ context.Context, _ string) (jetstream.Stream, error) {
	return nil, f.streamErr
}

func (f *fakeJetStream) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	f.created = &cfg
	return nil, nil
}

func TestMessageSubject(t *testing.T) {
	require.Equal(t, "chat.c1.msg.user", MessageSubject("c1", model.SenderUser))
	require.Equal(t, "chat.c1.msg.ai", MessageSubject("c1", model.SenderAI))
}

func TestPublishMessage(t *testing.T) {
	js := &fakeJetStream{}
	m := newStreamManager(js)
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	msg := &model.Message{
		ID:             "m1",
		ConversationID: "c1",
		Sender:         model.SenderAI,
		Content:        "Shipping is free over ₹499.",
		CreatedAt:      fixed,
	}
	require.NoError(t, m.PublishMessage(context.Background(), msg))

	require.Equal(t, "chat.c1.msg.ai", js.subject)
	require.Equal(t, 1, js.opts)

	var ev model.MessageEvent
	require.NoError(t, json.Unmarshal(js.data, &ev))
	require.Equal(t, model.EventTypeMessageCreated, ev.Type)
	require.Equal(t, "c1", ev.ConversationID)
	require.Equal(t, "m1", ev.Message.ID)
	require.Equal(t, "Shipping is free over ₹499.", ev.Message.Content)
	require.True(t, fixed.Equal(ev.PublishedAt))
}

func TestPublishMessage_Error(t *testing.T) {
	m := newStreamManager(&fakeJetStream{pubErr: errors.New("no responders")})

	err := m.PublishMessage(context.Background(), &model.Message{ID: "m1", ConversationID: "c1", Sender: model.SenderUser})
	require.ErrorContains(t, err, "no responders")
}

func TestEnsureStream(t *testing.T) {
	existing := &fakeJetStream{}
	require.NoError(t, newStreamManager(existing).EnsureStream(context.Background()))
	require.Nil(t, existing.created)

	missing := &fakeJetStream{streamErr: jetstream.ErrStreamNotFound}
	require.NoError(t, newStreamManager(missing).EnsureStream(context.Background()))
	require.NotNil(t, missing.created)
	require.Equal(t, StreamName, missing.created.Name)
	require.Equal(t, []string{"chat.>"}, missing.created.Subjects)

	broken := &fakeJetStream{streamErr: errors.New("timeout")}
	require.ErrorContains(t, newStreamManager(broken).EnsureStream(context.Background()), "timeout")
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, nil)
	require.ErrorContains(t, err, "URL is required")
}

package redisstream

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	MetaConvID    = "conv_id"
	MetaRequestID = "request_id"
	MetaSeq       = "seq"
	MetaOutcome   = "outcome"
)

// SnapshotPublisher mirrors snapshots onto a topic. It satisfies the
// conversation sink interface.
type SnapshotPublisher struct {
	pub   message.Publisher
	topic string
}

func NewSnapshotPublisher(pub message.Publisher, topic string) *SnapshotPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &SnapshotPublisher{pub: pub, topic: topic}
}

func (p *SnapshotPublisher) Record(ctx context.Context, convID string, snap assembler.Snapshot) error {
	if p == nil || p.pub == nil {
		return errors.New("snapshot publisher: nil publisher")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "snapshot publisher: marshal")
	}
	msg := newMessage(b, map[string]string{
		MetaConvID:    convID,
		MetaRequestID: snap.RequestID,
		MetaSeq:       strconv.Itoa(snap.Seq),
		MetaOutcome:   string(snap.Outcome),
	})
	msg.SetContext(ctx)
	if err := p.pub.Publish(p.topic, msg); err != nil {
		return errors.Wrap(err, "snapshot publisher: publish")
	}
	return nil
}

// SnapshotMessage is a received snapshot in its JSON form.
type SnapshotMessage struct {
	ConvID    string
	RequestID string
	Seq       int
	Outcome   string
	Snapshot  map[string]any
}

// Consume subscribes to the topic and calls fn for every message until ctx
// is done. Undecodable messages are acked and skipped.
func Consume(ctx context.Context, sub message.Subscriber, topic string, fn func(SnapshotMessage)) error {
	if topic == "" {
		topic = DefaultTopic
	}
	msgs, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrap(err, "subscribe")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var body map[string]any
			if err := json.Unmarshal(msg.Payload, &body); err != nil {
				log.Warn().Err(err).Str("uuid", msg.UUID).Msg("failed to decode snapshot message")
				msg.Ack()
				continue
			}
			seq, _ := strconv.Atoi(msg.Metadata.Get(MetaSeq))
			fn(SnapshotMessage{
				ConvID:    msg.Metadata.Get(MetaConvID),
				RequestID: msg.Metadata.Get(MetaRequestID),
				Seq:       seq,
				Outcome:   msg.Metadata.Get(MetaOutcome),
				Snapshot:  body,
			})
			msg.Ack()
		}
	}
}

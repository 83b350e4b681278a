package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// CollectedSet tracks distinct messages by MessageId. Redelivery of an
// already-seen message replaces its entry, so the newest receipt handle wins;
// older handles may already have expired.
type CollectedSet struct {
	messages map[string]types.Message
}

func NewCollectedSet() *CollectedSet {
	return &CollectedSet{messages: make(map[string]types.Message)}
}

func (cs *CollectedSet) Insert(msg types.Message) error {
	if msg.MessageId == nil {
		return fmt.Errorf("received message without an id: %w", ErrMissingField)
	}
	cs.messages[*msg.MessageId] = msg
	return nil
}

func (cs *CollectedSet) Len() int {
	return len(cs.messages)
}

// Messages exposes the underlying map for disposition. Iteration order is
// deliberately unspecified.
func (cs *CollectedSet) Messages() map[string]types.Message {
	return cs.messages
}

// Collector polls the source queue one message at a time until the target
// number of distinct messages has been observed. Single-item receives trade
// throughput for strict per-message dedup bookkeeping, which is fine for the
// bounded, operator-driven reads this tool is built for.
type Collector struct {
	queue             *QueueClient
	queueURL          string
	block             bool
	visibilityTimeout int32
}

// NewCollector builds a collector for queueURL. visibilityTimeout is the
// per-receive lease in seconds; pass 0 when no drain phase follows, so an
// inspection run does not lock messages away from other consumers.
func NewCollector(queue *QueueClient, queueURL string, block bool, visibilityTimeout int32) *Collector {
	return &Collector{
		queue:             queue,
		queueURL:          queueURL,
		block:             block,
		visibilityTimeout: visibilityTimeout,
	}
}

// Collect loops until the set holds target distinct messages. In blocking
// mode an empty response is not evidence of exhaustion and the loop keeps
// polling, with no upper bound on wall-clock time. In non-blocking mode the
// first empty response ends the run with whatever was collected, which is
// expected when the queue holds fewer messages than the target, not an
// error. Client errors and id-less messages abort immediately.
func (c *Collector) Collect(ctx context.Context, target int) (*CollectedSet, error) {
	collected := NewCollectedSet()

	for collected.Len() < target {
		messages, err := c.queue.Receive(ctx, c.queueURL, c.visibilityTimeout)
		if err != nil {
			return nil, err
		}

		if len(messages) == 0 {
			if c.block {
				continue
			}
			log.Debug().
				Int("collected", collected.Len()).
				Int("target", target).
				Msg("Queue exhausted before target was met")
			break
		}

		for _, msg := range messages {
			if err := collected.Insert(msg); err != nil {
				return nil, err
			}
			log.Debug().Str("message_id", *msg.MessageId).Msg("Message collected")
		}
	}

	return collected, nil
}

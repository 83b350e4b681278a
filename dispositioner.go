package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// Dispositioner applies the configured side effects to each collected
// message. Messages are independent of each other, but per message the order
// is fixed: print, forward, delete. Deleting last means a crash or API
// failure can only leave a redeliverable duplicate on the source queue,
// never lose a message.
type Dispositioner struct {
	queue     *QueueClient
	sourceURL string
	destURL   string // empty when forwarding is disabled
	sinks     Sinks
	out       io.Writer
}

func NewDispositioner(queue *QueueClient, sourceURL, destURL string, sinks Sinks, out io.Writer) *Dispositioner {
	return &Dispositioner{
		queue:     queue,
		sourceURL: sourceURL,
		destURL:   destURL,
		sinks:     sinks,
		out:       out,
	}
}

func (d *Dispositioner) Dispose(ctx context.Context, collected *CollectedSet) error {
	if d.sinks.DrainFirst {
		// Release the queue as early as possible: delete everything before
		// any printing or forwarding. A crash between here and the emit loop
		// loses the batch; the operator opted into that window explicitly.
		for id, msg := range collected.Messages() {
			if err := d.deleteMessage(ctx, id, msg); err != nil {
				return err
			}
		}
	}

	for id, msg := range collected.Messages() {
		if err := d.disposeOne(ctx, id, msg); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispositioner) disposeOne(ctx context.Context, id string, msg types.Message) error {
	if msg.Body == nil {
		return fmt.Errorf("message %s has no body: %w", id, ErrMissingField)
	}
	body := *msg.Body

	if d.sinks.Stdout {
		if d.sinks.FullRecord {
			if err := d.printFullRecord(msg); err != nil {
				return err
			}
		} else if _, err := fmt.Fprintln(d.out, body); err != nil {
			return fmt.Errorf("writing message %s: %w", id, err)
		}
	}

	if d.sinks.Forward {
		ack, err := d.queue.Send(ctx, d.destURL, body)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(ack)
		if err != nil {
			return fmt.Errorf("encoding send acknowledgment for %s: %w", id, err)
		}
		if _, err := fmt.Fprintln(d.out, string(encoded)); err != nil {
			return fmt.Errorf("writing send acknowledgment for %s: %w", id, err)
		}
		log.Debug().Str("message_id", id).Str("forwarded_id", ack.MessageId).Msg("Message forwarded")
	}

	// Only delete the message after it has been handled, so a failure above
	// leaves it on the queue instead of losing it.
	if d.sinks.Drain {
		return d.deleteMessage(ctx, id, msg)
	}

	return nil
}

func (d *Dispositioner) deleteMessage(ctx context.Context, id string, msg types.Message) error {
	if msg.ReceiptHandle == nil {
		return fmt.Errorf("message %s has no receipt handle: %w", id, ErrMissingField)
	}
	if err := d.queue.Delete(ctx, d.sourceURL, *msg.ReceiptHandle); err != nil {
		return err
	}
	log.Debug().Str("message_id", id).Msg("Message deleted from source queue")
	return nil
}

func (d *Dispositioner) printFullRecord(msg types.Message) error {
	if msg.ReceiptHandle == nil || msg.MD5OfBody == nil || msg.MessageId == nil {
		return fmt.Errorf("message record incomplete: %w", ErrMissingField)
	}

	attributes := msg.Attributes
	if attributes == nil {
		attributes = map[string]string{}
	}

	record := Record{
		Body:          *msg.Body,
		ReceiptHandle: *msg.ReceiptHandle,
		MD5OfBody:     *msg.MD5OfBody,
		MessageId:     *msg.MessageId,
		Attributes:    attributes,
	}

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record for %s: %w", *msg.MessageId, err)
	}
	if _, err := fmt.Fprintln(d.out, string(encoded)); err != nil {
		return fmt.Errorf("writing record for %s: %w", *msg.MessageId, err)
	}
	return nil
}

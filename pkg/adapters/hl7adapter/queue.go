package hl7adapter

import (
	"context"
	"fmt"

	"github.com/oarkflow/log"
	"github.com/oarkflow/xid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/utils"
)

// QueueSource consumes raw HL7 messages from an AMQP queue, one delivery per
// message. Deliveries may also carry a JSON envelope {"message": "..."}.
// Deliveries are acknowledged manually through Ack and Nack; anything left
// unsettled is redelivered by the broker once the channel closes.
type QueueSource struct {
	url       string
	queueName string
	prefetch  int
	consumer  string
	conn      *amqp.Connection
	channel   *amqp.Channel
	envelopes *parsers.JSONParser
}

// QueueSourceOption customizes an AMQP source.
type QueueSourceOption func(*QueueSource)

// WithPrefetch bounds how many unacknowledged deliveries the broker pushes.
func WithPrefetch(n int) QueueSourceOption {
	return func(q *QueueSource) {
		if n > 0 {
			q.prefetch = n
		}
	}
}

func NewQueueSource(url, queue string, opts ...QueueSourceOption) *QueueSource {
	if queue == "" {
		queue = "hl7"
	}
	q := &QueueSource{
		url:       url,
		queueName: queue,
		prefetch:  100,
		consumer:  "hl7-" + xid.New().String(),
		envelopes: parsers.NewJSONParser(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *QueueSource) Setup(_ context.Context) error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("hl7 queue source: dial: %w", err)
	}
	q.conn = conn
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("hl7 queue source: channel: %w", err)
	}
	q.channel = ch
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		return fmt.Errorf("hl7 queue source: qos: %w", err)
	}
	_, err = ch.QueueDeclare(
		q.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

// Extract consumes until ctx is done or the limit is reached. It then
// cancels the consumer and requeues deliveries the broker already pushed.
func (q *QueueSource) Extract(ctx context.Context, opts ...contracts.Option) (<-chan utils.Record, error) {
	if q.channel == nil {
		return nil, fmt.Errorf("hl7 queue source: Setup was not called")
	}
	options := contracts.ApplyOptions(opts...)
	deliveries, err := q.channel.Consume(
		q.queueName,
		q.consumer,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}
	out := make(chan utils.Record, q.prefetch)
	go func() {
		defer close(out)
		defer q.stop(deliveries)
		index := 0
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				rec := q.toRecord(d, index)
				if rec == nil {
					if err := d.Reject(false); err != nil {
						log.Printf("hl7 queue source: reject delivery %d: %v", d.DeliveryTag, err)
					}
					continue
				}
				select {
				case out <- rec:
					index++
				case <-ctx.Done():
					q.requeue(d)
					return
				}
				if options.Limit > 0 && index >= options.Limit {
					return
				}
			}
		}
	}()
	return out, nil
}

// stop cancels the consumer and hands back whatever is still in flight.
func (q *QueueSource) stop(deliveries <-chan amqp.Delivery) {
	if err := q.channel.Cancel(q.consumer, false); err != nil {
		log.Printf("hl7 queue source: cancel consumer %s: %v", q.consumer, err)
		return
	}
	for d := range deliveries {
		q.requeue(d)
	}
}

func (q *QueueSource) requeue(d amqp.Delivery) {
	if err := d.Nack(false, true); err != nil {
		log.Printf("hl7 queue source: requeue delivery %d: %v", d.DeliveryTag, err)
	}
}

func (q *QueueSource) toRecord(d amqp.Delivery, index int) utils.Record {
	raw := string(d.Body)
	if q.envelopes.Detect(d.Body) {
		env, err := q.envelopes.ParseEnvelope(d.Body)
		if err != nil {
			log.Printf("hl7 queue source: dropping delivery %s: %v", d.MessageId, err)
			return nil
		}
		raw = env.Message
	}
	return utils.Record{
		"raw_message":   raw,
		"source_path":   "amqp://" + q.queueName,
		"message_index": index,
		"delivery_id":   d.MessageId,
		"delivery_tag":  d.DeliveryTag,
	}
}

func deliveryTag(rec utils.Record) (uint64, error) {
	tag, ok := rec["delivery_tag"].(uint64)
	if !ok {
		return 0, fmt.Errorf("hl7 queue source: record has no delivery tag")
	}
	return tag, nil
}

// Ack confirms a record once it was loaded or deliberately dropped.
func (q *QueueSource) Ack(rec utils.Record) error {
	tag, err := deliveryTag(rec)
	if err != nil {
		return err
	}
	return q.channel.Ack(tag, false)
}

// Nack rejects a record. With requeue the broker delivers it again;
// without, it goes to the queue's dead-letter exchange if one is bound.
func (q *QueueSource) Nack(rec utils.Record, requeue bool) error {
	tag, err := deliveryTag(rec)
	if err != nil {
		return err
	}
	return q.channel.Nack(tag, false, requeue)
}

// Publish sends a raw message to the queue. It is used by feed replays and tests.
func (q *QueueSource) Publish(ctx context.Context, message string) error {
	if q.channel == nil {
		return fmt.Errorf("hl7 queue source: Setup was not called")
	}
	return q.channel.PublishWithContext(ctx,
		"",
		q.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "x-application/hl7-v2+er7",
			Body:        []byte(message),
		},
	)
}

func (q *QueueSource) Close() error {
	if q.channel != nil {
		_ = q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var (
	_ contracts.Source       = (*QueueSource)(nil)
	_ contracts.Acknowledger = (*QueueSource)(nil)
)

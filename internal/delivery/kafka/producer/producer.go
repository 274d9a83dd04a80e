package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	kafka "github.com/studyhive/roompresence/internal/delivery/kafka"
	"github.com/studyhive/roompresence/pkg/logger"
)

type Producer interface {
	PublishRoomJoined(ctx context.Context, event kafka.RoomJoinedEvent) error
	PublishRoomLeft(ctx context.Context, event kafka.RoomLeftEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishRoomJoined(ctx context.Context, event kafka.RoomJoinedEvent) error {
	event.Timestamp = time.Now()
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishRoomJoined: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: kafka.TopicRoomJoined,
		Key:   sarama.StringEncoder(event.RoomID), // Partition by room_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) PublishRoomLeft(ctx context.Context, event kafka.RoomLeftEvent) error {
	event.Timestamp = time.Now()
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.PublishRoomLeft: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: kafka.TopicRoomLeft,
		Key:   sarama.StringEncoder(event.RoomID), // Partition by room_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	if err := p.prod.Close(); err != nil {
		return err
	}

	return nil
}

package repository

import (
	"context"
	"fmt"

	"MacroPanel/internal/domain/models"
	pkgkafka "MacroPanel/pkg/kafka"
	"MacroPanel/pkg/util"
)

const publishChunk = 500

type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// ScoreMessage is one score row on the scores topic. A null value is missing.
type ScoreMessage struct {
	RunID        string   `json:"run_id"`
	CrossSection string   `json:"cid"`
	Category     string   `json:"xcat"`
	Date         string   `json:"real_date"`
	Value        *float64 `json:"value"`
}

// KafkaScorePublisher implements ScorePublisher. Messages are keyed by
// cross-section so one cid's scores stay ordered within a partition.
type KafkaScorePublisher struct {
	producer batchPublisher
	topic    string
}

func NewKafkaScorePublisher(producer *pkgkafka.Producer, topic string) *KafkaScorePublisher {
	return &KafkaScorePublisher{producer: producer, topic: topic}
}

func (p *KafkaScorePublisher) PublishScores(ctx context.Context, runID string, scores models.Panel) error {
	batch := make([]pkgkafka.Message, 0, min(len(scores), publishChunk))
	flush := func() error {
		if err := p.producer.PublishBatch(ctx, p.topic, batch); err != nil {
			return fmt.Errorf("publish scores %s: %w", runID, err)
		}
		batch = batch[:0]
		return nil
	}

	for _, o := range scores {
		dto := models.NewObservationDTO(o)
		batch = append(batch, pkgkafka.Message{
			Key: []byte(o.CrossSection),
			Value: ScoreMessage{
				RunID:        runID,
				CrossSection: o.CrossSection,
				Category:     o.Category,
				Date:         util.FormatDate(o.Date),
				Value:        dto.Value,
			},
		})
		if len(batch) == publishChunk {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(batch) > 0 {
		return flush()
	}
	return nil
}

func (p *KafkaScorePublisher) Close() error {
	return p.producer.Close()
}

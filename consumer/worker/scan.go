package worker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vinolens/vinolens-analyzer/infra"
	"github.com/vinolens/vinolens-analyzer/infra/produce"
	"github.com/vinolens/vinolens-analyzer/repository"
)

type ScanConsumer struct {
	channel    *amqp.Channel
	infra      *infra.Infra
	repository *repository.Repository
	pipeline   *Pipeline
}

func NewScanConsumer(channel *amqp.Channel, infra *infra.Infra, repo *repository.Repository) *ScanConsumer {
	return &ScanConsumer{
		channel:    channel,
		infra:      infra,
		repository: repo,
		pipeline: &Pipeline{
			Repository: repo,
			Sommelier:  infra.Sommelier,
			Logger:     infra.Logger,
		},
	}
}

func (c *ScanConsumer) Start(ctx context.Context) error {
	if err := c.startAnalyzeConsumer(ctx); err != nil {
		return fmt.Errorf("failed to start analyze consumer: %w", err)
	}
	return nil
}

func (c *ScanConsumer) startAnalyzeConsumer(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		produce.AnalyzeScanQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register analyze consumer: %w", err)
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Scan Consumer] Started listening for analyze jobs on queue: %s", produce.AnalyzeScanQueue)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.infra.Logger.InfoWithContextf(ctx, "[Scan Consumer] Shutting down...")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.infra.Logger.WarningWithContextf(ctx, "[Scan Consumer] Channel closed")
					return
				}
				c.handleAnalyzeScan(ctx, msg)
			}
		}
	}()

	return nil
}

func (c *ScanConsumer) handleAnalyzeScan(ctx context.Context, msg amqp.Delivery) {
	var payload produce.ScanJobMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Scan Consumer] Failed to unmarshal message")
		_ = msg.Nack(false, false)
		return
	}

	if payload.JobID == "" || payload.ImageURL == "" {
		c.infra.Logger.ErrorWithContextf(ctx, nil, "[Scan Consumer] Message missing job_id or image_url")
		_ = msg.Nack(false, false)
		return
	}

	c.infra.Logger.InfoWithContextf(ctx, "[Scan Consumer] Processing job (request_id=%s, job_id=%s)", payload.RequestID, payload.JobID)

	// Use a background context since this is a long-running operation and the
	// dispatching request has already returned.
	bgCtx := context.Background()

	if err := c.pipeline.Run(bgCtx, payload); err != nil {
		// Run only errors when the terminal write itself failed; requeue so
		// the job is not left in processing forever. A redelivery after a
		// successful terminal write is rejected by the store's state guard.
		c.infra.Logger.ErrorWithContextf(ctx, err, "[Scan Consumer] Terminal write failed, requeueing (request_id=%s, job_id=%s)", payload.RequestID, payload.JobID)
		_ = msg.Nack(false, true)
		return
	}

	_ = msg.Ack(false)
}

package produce

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ScanExchange          = "scan.exchange"
	AnalyzeScanQueue      = "scan.analyze"
	AnalyzeScanRoutingKey = "scan.analyze"
)

// ScanJobMessage is the dispatch payload handed to the analyzer worker. The
// worker's response is never awaited; the trigger only learns about a broken
// broker through the synchronous publish error.
type ScanJobMessage struct {
	JobID     string `json:"job_id"`
	ImageURL  string `json:"image_url"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
}

// ScanProduceService handles publishing scan analysis jobs
type ScanProduceService struct {
	channel *amqp.Channel
}

func InitScanProduceService(channel *amqp.Channel) *ScanProduceService {
	service := &ScanProduceService{
		channel: channel,
	}

	err := channel.ExchangeDeclare(
		ScanExchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to declare Scan exchange: " + err.Error())
	}

	_, err = channel.QueueDeclare(
		AnalyzeScanQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		panic("Failed to declare Analyze Scan queue: " + err.Error())
	}

	err = channel.QueueBind(
		AnalyzeScanQueue,
		AnalyzeScanRoutingKey,
		ScanExchange,
		false,
		nil,
	)
	if err != nil {
		panic("Failed to bind Analyze Scan queue: " + err.Error())
	}

	return service
}

// PublishAnalyzeScan publishes a scan job for the analyzer worker.
func (s *ScanProduceService) PublishAnalyzeScan(ctx context.Context, msg ScanJobMessage) error {
	msg.Timestamp = time.Now().Unix()

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return s.channel.PublishWithContext(
		ctx,
		ScanExchange,
		AnalyzeScanRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}

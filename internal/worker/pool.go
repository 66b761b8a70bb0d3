package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"car-report/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

type ReportProcessor interface {
	ProcessReport(ctx context.Context, task models.TaskMessage) error
}

// Pool runs a fixed number of workers over queue deliveries.
type Pool struct {
	processor ReportProcessor
	size      int
	timeout   time.Duration
}

func NewPool(processor ReportProcessor, size int, timeout time.Duration) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{processor: processor, size: size, timeout: timeout}
}

// Run dispatches deliveries until ctx is cancelled or msgs is closed, then
// waits for in-flight reports. A delivery is acknowledged once its report is
// stored as completed or failed; malformed messages are dropped.
func (p *Pool) Run(ctx context.Context, msgs <-chan amqp.Delivery) {
	var wg sync.WaitGroup
	taskChan := make(chan amqp.Delivery, p.size)

	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			log.Debug().Int("worker", workerID).Msg("Worker started")

			for msg := range taskChan {
				p.handle(workerID, msg)
			}

			log.Debug().Int("worker", workerID).Msg("Worker stopped")
		}(i + 1)
	}

	func() {
		defer close(taskChan)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					log.Warn().Msg("Delivery channel closed")
					return
				}
				taskChan <- msg
			}
		}
	}()

	wg.Wait()
}

func (p *Pool) handle(workerID int, msg amqp.Delivery) {
	var task models.TaskMessage
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		log.Error().Err(err).Int("worker", workerID).Msg("Failed to unmarshal message")
		_ = msg.Nack(false, false)
		return
	}

	// Reports in flight finish even during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	err := p.processor.ProcessReport(ctx, task)
	cancel()

	if err != nil {
		log.Error().Err(err).Int("worker", workerID).Str("report_id", task.ReportID).Msg("Failed to process report")
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		log.Error().Err(ackErr).Str("report_id", task.ReportID).Msg("Failed to ack message")
	}
}

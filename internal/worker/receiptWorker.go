package worker

import (
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/kudiwallet/kudi/internal/handler"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/stream"
)

// ReceiptWorker emails a receipt or credit alert for every completed
// transaction leg. Delivery failures are logged and dropped, the ledger
// outcome is already final by the time events reach this worker.
func (wk *Worker) ReceiptWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: receiptGroupID,
		Topic:   TransactionCompletedTopic,
	})

	if err != nil {
		log.Fatalf("Error creating consumer: %v", err)
	}
	for {
		event := consumer.Poll(100) // Poll every 100ms
		switch e := event.(type) {
		case *kafka.Message:
			var txEvent handler.TransactionEvent
			if err := json.Unmarshal(e.Value, &txEvent); err != nil {
				wk.Logger.Error("malformed transaction event", "error", err)
				continue
			}

			wk.sendReceipt(&txEvent)
		case kafka.Error:
			wk.Logger.Error("kafka error", "error", e)
		default:
			// Handle other events if needed
		}
	}
}

func (wk *Worker) sendReceipt(txEvent *handler.TransactionEvent) {
	if txEvent.Email == "" || txEvent.Status != models.TransactionStatusSuccess {
		return
	}

	data := map[string]any{
		"Amount":    txEvent.Amount,
		"Reference": txEvent.Reference,
		"Date":      txEvent.CompletedAt,
	}

	var template string
	switch txEvent.Type {
	case models.TransactionTypeTransferOut:
		template = "transfer-receipt.tmpl"
	case models.TransactionTypeTransferIn, models.TransactionTypeDeposit:
		template = "credit-alert.tmpl"
	default:
		return
	}

	if err := wk.Mailer.Send(txEvent.Email, data, template); err != nil {
		wk.Logger.Error("failed to send receipt",
			"transaction_id", txEvent.TransactionID, "error", err)
	}
}

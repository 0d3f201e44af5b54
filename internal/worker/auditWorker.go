package worker

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/kudiwallet/kudi/internal/handler"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/stream"
)

// AuditWorker records the audit trail for completed transaction legs. The
// trail is write-only bookkeeping; a failed insert is logged and the event
// is skipped, it never affects the ledger.
func (wk *Worker) AuditWorker() {
	consumer, err := wk.KafkaStream.CreateConsumer(&stream.StreamConsumer{
		GroupId: auditGroupID,
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

			wk.recordAudit(&txEvent)
		case kafka.Error:
			wk.Logger.Error("kafka error", "error", e)
		default:
			// Handle other events if needed
		}
	}
}

func (wk *Worker) recordAudit(txEvent *handler.TransactionEvent) {
	action := transactionAction(txEvent)

	err := wk.DB.Audit().InsertTransactionLog(wk.Ctx, &models.TransactionLog{
		TransactionID: txEvent.TransactionID,
		WalletID:      txEvent.WalletID,
		Action:        action,
	})
	if err != nil {
		wk.Logger.Error("failed to record transaction log",
			"transaction_id", txEvent.TransactionID, "error", err)
	}

	if txEvent.UserID == "" {
		return
	}

	err = wk.DB.Audit().InsertAccountLog(wk.Ctx, &models.AccountLog{
		UserID:      txEvent.UserID,
		Entity:      repository.AccountLogTransactionEntity,
		EntityID:    sql.NullString{String: txEvent.TransactionID, Valid: true},
		Description: fmt.Sprintf("%s %s (%s)", txEvent.Type, txEvent.Status, txEvent.Reference),
	})
	if err != nil {
		wk.Logger.Error("failed to record account log",
			"transaction_id", txEvent.TransactionID, "error", err)
	}
}

func transactionAction(txEvent *handler.TransactionEvent) string {
	if txEvent.Status == models.TransactionStatusFailed {
		return repository.TransactionLogActionFailed
	}

	switch txEvent.Type {
	case models.TransactionTypeTransferOut:
		return repository.TransactionLogActionDebit
	case models.TransactionTypeTransferIn, models.TransactionTypeDeposit:
		return repository.TransactionLogActionCredit
	default:
		return repository.TransactionLogActionSuccess
	}
}

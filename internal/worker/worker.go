package worker

import (
	"context"
	"log/slog"

	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/smtp"
	"github.com/kudiwallet/kudi/internal/stream"
)

type Worker struct {
	KafkaStream *stream.KafkaStream
	DB          repository.Database
	Mailer      smtp.MailerInterface
	Ctx         context.Context
	Logger      *slog.Logger
}

const (
	// receiptGroupID is used for workers that send user-facing notifications
	// after a transaction has reached a terminal state
	receiptGroupID = "transaction-receipt-group"

	// auditGroupID is used for workers that write the audit trail for
	// completed transactions
	auditGroupID = "transaction-audit-group"

	// TransactionCompletedTopic carries one event per transaction leg that
	// reached a terminal state. Events are published after commit, so every
	// consumer observes the ledger outcome, never an in-flight state.
	TransactionCompletedTopic = "transaction.completed"
)

// Our workers typically need access to the database, mailer and the kafka
// event stream; worker-specific dependencies are passed as arguments.
func New(wk *Worker) *Worker {
	return &Worker{
		KafkaStream: wk.KafkaStream,
		DB:          wk.DB,
		Mailer:      wk.Mailer,
		Ctx:         wk.Ctx,
		Logger:      wk.Logger,
	}
}

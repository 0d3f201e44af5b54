package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/stream"
)

const (
	transactionCompletedTopic = "transaction.completed"
)

// TransactionEvent is the post-commit message published for every
// transaction leg that reached a terminal state. Workers consume it to send
// receipts and write the audit trail.
type TransactionEvent struct {
	TransactionID string `json:"transaction_id"`
	WalletID      string `json:"wallet_id"`
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Reference     string `json:"reference"`
	CompletedAt   string `json:"completed_at"`
}

func publishTransactionEvent(kafka *stream.KafkaStream, transaction *models.Transaction, userID, email string) error {
	event := TransactionEvent{
		TransactionID: transaction.ID,
		WalletID:      transaction.WalletID,
		UserID:        userID,
		Email:         email,
		Type:          transaction.Type,
		Status:        transaction.Status,
		Amount:        transaction.Amount.StringFixed(2),
		Reference:     transaction.Reference,
		CompletedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	message, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return kafka.ProduceMessage(transactionCompletedTopic, string(message))
}

type queryStringValues struct {
	Limit  int
	Offset int
}

func retrieveUrlQueryValues(r *http.Request, maxLimit int) *queryStringValues {
	var queryValues = &queryStringValues{}

	limitStr := r.URL.Query().Get("limit")
	offsetStr := r.URL.Query().Get("page")

	// Default pagination values
	offset := 0
	limit := 10

	if limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	// History depth is capped regardless of what the client asks for.
	if maxLimit > 0 && limit > maxLimit {
		limit = maxLimit
	}
	queryValues.Limit = limit

	if offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 1 {
			offset = (parsedOffset - 1) * limit
		}
	}
	queryValues.Offset = offset

	return queryValues
}

package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// define possible transaction types
const (
	TransactionTypeDeposit     = "deposit"
	TransactionTypeTransferIn  = "transfer_in"
	TransactionTypeTransferOut = "transfer_out"
)

// define possible transaction status
const (
	TransactionStatusPending = "pending"
	TransactionStatusSuccess = "success"
	TransactionStatusFailed  = "failed"
)

// define possible failure reasons
const (
	FailureReasonInsufficientBalance = "insufficient_balance"
	FailureReasonProviderDeclined    = "provider_declined"
)

type Transaction struct {
	ID                   string          `db:"id"`
	WalletID             string          `db:"wallet_id"`
	CounterpartyWalletID sql.NullString  `db:"counterparty_wallet_id"`
	CorrelationID        sql.NullString  `db:"correlation_id"`
	Type                 string          `db:"type"`
	Amount               decimal.Decimal `db:"amount"`
	Status               string          `db:"status"`
	Reference            string          `db:"reference"`
	FailureReason        sql.NullString  `db:"failure_reason"`
	PaymentURL           sql.NullString  `db:"payment_url"`
	ProviderMetadata     Metadata        `db:"provider_metadata"`
	CreatedAt            time.Time       `db:"created_at"`
	UpdatedAt            sql.NullTime    `db:"updated_at"`
}

// Metadata holds free-form provider payload fields on deposit rows,
// stored as JSONB.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported type for metadata: %T", value)
	}
}

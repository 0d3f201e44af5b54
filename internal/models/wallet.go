package models

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

type Wallet struct {
	ID           string          `db:"id"`
	UserID       string          `db:"user_id"`
	WalletNumber string          `db:"wallet_number"`
	Balance      decimal.Decimal `db:"balance"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    sql.NullTime    `db:"updated_at"`
}

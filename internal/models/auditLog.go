package models

import (
	"database/sql"
	"time"
)

type AccountLog struct {
	ID          string         `db:"id"`
	UserID      string         `db:"user_id"`
	Entity      string         `db:"entity"`
	EntityID    sql.NullString `db:"entity_id"`
	Description string         `db:"description"`
	CreatedAt   time.Time      `db:"created_at"`
}

type TransactionLog struct {
	ID            string    `db:"id"`
	TransactionID string    `db:"transaction_id"`
	WalletID      string    `db:"wallet_id"`
	Action        string    `db:"action"`
	CreatedAt     time.Time `db:"created_at"`
}

package handler

import (
	"net/http"
	"time"

	"github.com/kudiwallet/kudi/internal/cache"
	"github.com/kudiwallet/kudi/internal/config"
	"github.com/kudiwallet/kudi/internal/context"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/ledger"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/response"
)

type walletHandler struct {
	ledger     *ledger.Ledger
	cache      *cache.Cache
	errHandler *errHandler.ErrorRepository
	config     *config.Config
}

func NewWalletHandler(ledger *ledger.Ledger, cache *cache.Cache, errHandler *errHandler.ErrorRepository, config *config.Config) *walletHandler {
	return &walletHandler{
		ledger:     ledger,
		cache:      cache,
		errHandler: errHandler,
		config:     config,
	}
}

// The cache absorbs repeated balance reads between writes; the ledger stays
// the source of truth and a miss falls through to it.
func (h *walletHandler) HandleWalletBalance(w http.ResponseWriter, r *http.Request) {
	authCtx := context.ContextGetAuth(r)

	if cached, hit, err := h.cache.GetBalance(authCtx.UserID); err == nil && hit {
		data := map[string]any{
			"Balance": cached.StringFixed(2),
		}

		err = response.JSONOkResponse(w, data, "", nil)
		if err != nil {
			h.errHandler.ServerError(w, r, err)
		}
		return
	}

	wallet, err := h.ledger.Balance(r.Context(), authCtx.UserID)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	if err := h.cache.SetBalance(authCtx.UserID, wallet.Balance); err != nil {
		h.errHandler.ReportServerError(r, err)
	}

	data := map[string]any{
		"WalletNumber": wallet.WalletNumber,
		"Balance":      wallet.Balance.StringFixed(2),
	}

	err = response.JSONOkResponse(w, data, "", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *walletHandler) HandleWalletTransactions(w http.ResponseWriter, r *http.Request) {
	authCtx := context.ContextGetAuth(r)

	queryValues := retrieveUrlQueryValues(r, h.config.Pagination.MaxPageSize)

	transactions, total, err := h.ledger.Transactions(r.Context(), authCtx.UserID, queryValues.Limit, queryValues.Offset)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(transactions))
	for i := range transactions {
		items = append(items, transactionResource(&transactions[i]))
	}

	data := map[string]any{
		"Transactions": items,
		"Total":        total,
	}

	err = response.JSONOkResponse(w, data, "", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func transactionResource(transaction *models.Transaction) map[string]any {
	resource := map[string]any{
		"Id":        transaction.ID,
		"Type":      transaction.Type,
		"Status":    transaction.Status,
		"Amount":    transaction.Amount.StringFixed(2),
		"Reference": transaction.Reference,
		"CreatedAt": transaction.CreatedAt.Format(time.RFC3339),
	}

	if transaction.FailureReason.Valid {
		resource["FailureReason"] = transaction.FailureReason.String
	}
	if transaction.PaymentURL.Valid {
		resource["PaymentUrl"] = transaction.PaymentURL.String
	}

	return resource
}

package handler

import (
	dctx "context"
	"log"
	"net/http"

	"github.com/kudiwallet/kudi/internal/cache"
	"github.com/kudiwallet/kudi/internal/context"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/ledger"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/request"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/stream"
	"github.com/kudiwallet/kudi/internal/validator"

	"github.com/shopspring/decimal"
)

type transactionHandler struct {
	db         repository.Database
	ledger     *ledger.Ledger
	kafka      *stream.KafkaStream
	cache      *cache.Cache
	errHandler *errHandler.ErrorRepository
	helper     *helper.HelperRepository
}

func NewTransactionHandler(db repository.Database, ledger *ledger.Ledger, kafka *stream.KafkaStream, cache *cache.Cache, errHandler *errHandler.ErrorRepository, helper *helper.HelperRepository) *transactionHandler {
	return &transactionHandler{
		db:         db,
		ledger:     ledger,
		kafka:      kafka,
		cache:      cache,
		errHandler: errHandler,
		helper:     helper,
	}
}

// Wallet to wallet transfer. The ledger settles both legs atomically; this
// handler validates input, drives the ledger, then fans out cache
// invalidation and notification events after commit.
func (h *transactionHandler) HandleTransferMoney(w http.ResponseWriter, r *http.Request) {
	var input struct {
		WalletNumber string              `json:"wallet_number"`
		Amount       decimal.Decimal     `json:"amount"`
		Reference    string              `json:"reference"`
		Validator    validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.Matches(input.WalletNumber, validator.RgxWalletNumber), "Wallet number must be 13 digits")
	input.Validator.Check(validator.IsMoneyAmount(input.Amount), "Amount must be positive with at most two decimal places")
	input.Validator.Check(validator.NotBlank(input.Reference), "Reference is required")
	input.Validator.Check(validator.MaxRunes(input.Reference, 64), "Reference is too long")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	authCtx := context.ContextGetAuth(r)

	result, err := h.ledger.Transfer(r.Context(), authCtx, input.WalletNumber, input.Amount, input.Reference)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	if !result.Replayed {
		h.fanOutTransfer(r, result, authCtx.UserID, authCtx.Email)
	}

	data := map[string]any{
		"Id":        result.OutTransaction.ID,
		"Status":    result.OutTransaction.Status,
		"Amount":    result.OutTransaction.Amount.StringFixed(2),
		"Reference": result.OutTransaction.Reference,
		"Duplicate": result.Replayed,
	}

	message := "Transfer completed"
	if result.Replayed {
		message = "Transfer already processed"
	}

	err = response.JSONOkResponse(w, data, message, nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *transactionHandler) fanOutTransfer(r *http.Request, result *ledger.TransferResult, senderID, senderEmail string) {
	h.helper.BackgroundTask(r, func() error {
		// The request context is gone once the response is written.
		ctx := dctx.Background()

		if err := h.cache.InvalidateBalance(senderID); err != nil {
			log.Printf("Error invalidating sender balance cache: %v", err)
		}

		if err := publishTransactionEvent(h.kafka, result.OutTransaction, senderID, senderEmail); err != nil {
			return err
		}

		if result.InTransaction == nil {
			return nil
		}

		wallet, found, err := h.db.Wallet().GetOne(ctx, result.InTransaction.WalletID)
		if err != nil || !found {
			return err
		}

		if err := h.cache.InvalidateBalance(wallet.UserID); err != nil {
			log.Printf("Error invalidating recipient balance cache: %v", err)
		}

		recipient, found, err := h.db.User().GetOne(ctx, wallet.UserID)
		if err != nil || !found {
			return err
		}

		return publishTransactionEvent(h.kafka, result.InTransaction, recipient.ID, recipient.Email)
	})
}

func (h *transactionHandler) HandleDepositInitiate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Amount    decimal.Decimal     `json:"amount"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.IsMoneyAmount(input.Amount), "Amount must be positive with at most two decimal places")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	authCtx := context.ContextGetAuth(r)

	initiated, err := h.ledger.InitiateDeposit(r.Context(), authCtx, input.Amount)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	data := map[string]any{
		"Reference":  initiated.Reference,
		"PaymentUrl": initiated.AuthorizationURL,
		"Status":     initiated.Transaction.Status,
	}

	err = response.JSONCreatedResponse(w, data, "Deposit initiated")
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

// Pull based status check for a deposit. Credits applied during this call
// trigger the same fan out as a webhook delivery.
func (h *transactionHandler) HandleDepositVerify(w http.ResponseWriter, r *http.Request) {
	reference := r.PathValue("reference")

	prior, found, err := h.db.Transaction().GetByTypeAndReference(r.Context(), models.TransactionTypeDeposit, reference)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}
	if !found {
		h.errHandler.DomainError(w, r, ledger.ErrUnknownReference)
		return
	}

	// Other users' references answer as unknown, not forbidden, so the
	// endpoint leaks nothing about which references exist.
	authCtx := context.ContextGetAuth(r)
	wallet, found, err := h.db.Wallet().GetOne(r.Context(), prior.WalletID)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}
	if !found || wallet.UserID != authCtx.UserID {
		h.errHandler.DomainError(w, r, ledger.ErrUnknownReference)
		return
	}

	transaction, err := h.ledger.VerifyDeposit(r.Context(), reference)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	if prior.Status == models.TransactionStatusPending && transaction.Status != models.TransactionStatusPending {
		fanOutDeposit(r, h.db, h.kafka, h.cache, h.helper, transaction)
	}

	err = response.JSONOkResponse(w, transactionResource(transaction), "", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func fanOutDeposit(r *http.Request, db repository.Database, kafka *stream.KafkaStream, balanceCache *cache.Cache, help *helper.HelperRepository, transaction *models.Transaction) {
	help.BackgroundTask(r, func() error {
		ctx := dctx.Background()

		wallet, found, err := db.Wallet().GetOne(ctx, transaction.WalletID)
		if err != nil || !found {
			return err
		}

		if err := balanceCache.InvalidateBalance(wallet.UserID); err != nil {
			log.Printf("Error invalidating balance cache: %v", err)
		}

		owner, found, err := db.User().GetOne(ctx, wallet.UserID)
		if err != nil || !found {
			return err
		}

		return publishTransactionEvent(kafka, transaction, owner.ID, owner.Email)
	})
}

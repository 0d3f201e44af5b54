package handler

import (
	"io"
	"net/http"

	"github.com/kudiwallet/kudi/internal/cache"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/ledger"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/stream"
)

const (
	paystackSignatureHeader = "X-Paystack-Signature"
	maxWebhookBodySize      = 1_048_576
)

type webhookHandler struct {
	db         repository.Database
	ledger     *ledger.Ledger
	kafka      *stream.KafkaStream
	cache      *cache.Cache
	errHandler *errHandler.ErrorRepository
	helper     *helper.HelperRepository
}

func NewWebhookHandler(db repository.Database, ledger *ledger.Ledger, kafka *stream.KafkaStream, cache *cache.Cache, errHandler *errHandler.ErrorRepository, helper *helper.HelperRepository) *webhookHandler {
	return &webhookHandler{
		db:         db,
		ledger:     ledger,
		kafka:      kafka,
		cache:      cache,
		errHandler: errHandler,
		helper:     helper,
	}
}

// Webhook deliveries are authenticated by payload signature, not by user
// credentials, so this endpoint sits outside the Authenticate middleware.
// Redeliveries of an already settled charge get a 200 so the provider stops
// retrying.
func (h *webhookHandler) HandlePaystackWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	result, err := h.ledger.ReconcileWebhook(r.Context(), body, r.Header.Get(paystackSignatureHeader))
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	if result.Ignored {
		err = response.JSONOkResponse(w, nil, "Event ignored", nil)
		if err != nil {
			h.errHandler.ServerError(w, r, err)
		}
		return
	}

	if !result.Duplicate {
		fanOutDeposit(r, h.db, h.kafka, h.cache, h.helper, result.Transaction)
	}

	data := map[string]any{
		"Reference": result.Transaction.Reference,
		"Status":    result.Transaction.Status,
		"Duplicate": result.Duplicate,
	}

	err = response.JSONOkResponse(w, data, "Webhook processed", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

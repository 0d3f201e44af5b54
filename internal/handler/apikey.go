package handler

import (
	"net/http"
	"time"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/context"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/request"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/validator"
)

type apiKeyHandler struct {
	keys       *auth.KeyService
	errHandler *errHandler.ErrorRepository
}

func NewAPIKeyHandler(keys *auth.KeyService, errHandler *errHandler.ErrorRepository) *apiKeyHandler {
	return &apiKeyHandler{
		keys:       keys,
		errHandler: errHandler,
	}
}

// The plaintext secret appears exactly once, in the creation response. Only
// its hash is stored, so it can never be shown again.
func (h *apiKeyHandler) HandleAPIKeyCreate(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name        string              `json:"name"`
		Permissions []string            `json:"permissions"`
		Expiry      string              `json:"expiry"`
		Validator   validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Name), "Name is required")
	input.Validator.Check(len(input.Permissions) > 0, "At least one permission is required")
	input.Validator.Check(validator.NotBlank(input.Expiry), "Expiry is required")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	authCtx := context.ContextGetAuth(r)

	issued, err := h.keys.Create(r.Context(), authCtx.UserID, input.Name, input.Permissions, input.Expiry)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	data := map[string]any{
		"Id":          issued.Key.ID,
		"Name":        issued.Key.Name,
		"Secret":      issued.Secret,
		"Permissions": issued.Key.Permissions,
		"ExpiresAt":   issued.Key.ExpiresAt.Format(time.RFC3339),
	}

	err = response.JSONCreatedResponse(w, data, "API key created, store the secret now, it will not be shown again")
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *apiKeyHandler) HandleAPIKeyList(w http.ResponseWriter, r *http.Request) {
	authCtx := context.ContextGetAuth(r)

	keys, err := h.keys.List(r.Context(), authCtx.UserID)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	items := make([]map[string]any, 0, len(keys))
	for i := range keys {
		items = append(items, apiKeyResource(&keys[i]))
	}

	data := map[string]any{
		"Keys": items,
	}

	err = response.JSONOkResponse(w, data, "", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *apiKeyHandler) HandleAPIKeyGet(w http.ResponseWriter, r *http.Request) {
	authCtx := context.ContextGetAuth(r)

	key, err := h.keys.Get(r.Context(), authCtx.UserID, r.PathValue("id"))
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, apiKeyResource(key), "", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *apiKeyHandler) HandleAPIKeyRevoke(w http.ResponseWriter, r *http.Request) {
	authCtx := context.ContextGetAuth(r)

	key, err := h.keys.Revoke(r.Context(), authCtx.UserID, r.PathValue("id"))
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	err = response.JSONOkResponse(w, apiKeyResource(key), "API key revoked", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

// Rollover revokes the old key and issues a replacement with the same name
// and permissions in one transaction.
func (h *apiKeyHandler) HandleAPIKeyRollover(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Expiry    string              `json:"expiry"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Expiry), "Expiry is required")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	authCtx := context.ContextGetAuth(r)

	issued, err := h.keys.Rollover(r.Context(), authCtx.UserID, r.PathValue("id"), input.Expiry)
	if err != nil {
		h.errHandler.DomainError(w, r, err)
		return
	}

	data := map[string]any{
		"Id":          issued.Key.ID,
		"Name":        issued.Key.Name,
		"Secret":      issued.Secret,
		"Permissions": issued.Key.Permissions,
		"ExpiresAt":   issued.Key.ExpiresAt.Format(time.RFC3339),
	}

	err = response.JSONOkResponse(w, data, "API key rolled over, store the new secret now", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func apiKeyResource(key *models.APIKey) map[string]any {
	return map[string]any{
		"Id":          key.ID,
		"Name":        key.Name,
		"Permissions": key.Permissions,
		"ExpiresAt":   key.ExpiresAt.Format(time.RFC3339),
		"Revoked":     key.Revoked,
		"CreatedAt":   key.CreatedAt.Format(time.RFC3339),
	}
}

package handler

import (
	"bytes"
	dctx "context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/context"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
)

func newAPIKeyHandlerFixture(t *testing.T) (*apiKeyHandler, *auth.Context) {
	t.Helper()

	db := repository.NewMemoryDatabase()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userID, err := db.User().Insert(dctx.Background(), &models.User{
		FirstName:      "Ada",
		LastName:       "Obi",
		Email:          "ada@example.com",
		HashedPassword: "x",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	baseURL := "http://localhost:4444"
	help := helper.New(&baseURL, &wg, nil)
	errorHandler := errHandler.New("", nil, logger, help)

	keys := auth.NewKeyService(db, 5, logger)

	authCtx := &auth.Context{
		UserID:     userID,
		Email:      "ada@example.com",
		Credential: auth.CredentialSession,
	}

	return NewAPIKeyHandler(keys, errorHandler), authCtx
}

type testEnvelope struct {
	Status    int             `json:"status"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Data      map[string]any  `json:"data"`
	Error     json.RawMessage `json:"error"`
	ErrorCode string          `json:"error_code"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) testEnvelope {
	t.Helper()

	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	return envelope
}

func TestHandleAPIKeyCreate(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	body := `{"name": "ci-pipeline", "permissions": ["read", "deposit"], "expiry": "7D"}`
	r := httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader([]byte(body)))
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyCreate(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.True(t, envelope.Success)
	require.True(t, strings.HasPrefix(envelope.Data["secret"].(string), "sk_live_"))
	require.Equal(t, "ci-pipeline", envelope.Data["name"])
}

func TestHandleAPIKeyCreateValidation(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	body := `{"name": "", "permissions": [], "expiry": ""}`
	r := httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader([]byte(body)))
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyCreate(rec, r)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.False(t, envelope.Success)
	require.Equal(t, errHandler.CodeValidationFailed, envelope.ErrorCode)
}

func TestHandleAPIKeyCreateUnknownPermission(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	body := `{"name": "bad", "permissions": ["admin"], "expiry": "7D"}`
	r := httptest.NewRequest(http.MethodPost, "/api-keys", bytes.NewReader([]byte(body)))
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyCreate(rec, r)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleAPIKeyRevoke(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	issued, err := h.keys.Create(dctx.Background(), authCtx.UserID, "ci", []string{auth.PermissionRead}, "7D")
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodDelete, "/api-keys/"+issued.Key.ID, nil)
	r.SetPathValue("id", issued.Key.ID)
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyRevoke(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Equal(t, true, envelope.Data["revoked"])
}

func TestHandleAPIKeyRolloverKeepsPermissions(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	issued, err := h.keys.Create(dctx.Background(), authCtx.UserID, "ci", []string{auth.PermissionRead, auth.PermissionDeposit}, "7D")
	require.NoError(t, err)

	body := `{"expiry": "30Min"}`
	r := httptest.NewRequest(http.MethodPost, "/api-keys/"+issued.Key.ID+"/rollover", bytes.NewReader([]byte(body)))
	r.SetPathValue("id", issued.Key.ID)
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyRollover(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.NotEqual(t, issued.Secret, envelope.Data["secret"])
	require.ElementsMatch(t,
		[]any{auth.PermissionRead, auth.PermissionDeposit},
		envelope.Data["permissions"].([]any))
}

func TestHandleAPIKeyList(t *testing.T) {
	h, authCtx := newAPIKeyHandlerFixture(t)

	for _, name := range []string{"one", "two"} {
		_, err := h.keys.Create(dctx.Background(), authCtx.UserID, name, []string{auth.PermissionRead}, "7D")
		require.NoError(t, err)
	}

	r := httptest.NewRequest(http.MethodGet, "/api-keys", nil)
	r = context.ContextSetAuth(r, authCtx)

	rec := httptest.NewRecorder()
	h.HandleAPIKeyList(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)

	envelope := decodeEnvelope(t, rec)
	require.Len(t, envelope.Data["keys"].([]any), 2)
}

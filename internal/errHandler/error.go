package errHandler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"runtime/debug"
	"strings"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/ledger"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/smtp"
)

// Stable error codes returned in the error_code field. These are part of
// the public contract; messages may be reworded, codes may not.
const (
	CodeInsufficientBalance = "insufficient_balance"
	CodeSameWalletTransfer  = "same_wallet_transfer"
	CodeInvalidAmount       = "invalid_amount"
	CodeWalletNotFound      = "wallet_not_found"
	CodeTransactionNotFound = "transaction_not_found"
	CodeUnknownReference    = "unknown_reference"
	CodeSignatureMismatch   = "signature_mismatch"
	CodeProviderUnavailable = "provider_unavailable"
	CodeDuplicateReference  = "duplicate_reference"
	CodeInvalidCredentials  = "invalid_credentials"
	CodeTokenExpired        = "token_expired"
	CodeCredentialRevoked   = "credential_revoked"
	CodeForbidden           = "forbidden"
	CodeKeyNotFound         = "key_not_found"
	CodeKeyLimitReached     = "key_limit_reached"
	CodeValidationFailed    = "validation_failed"
	CodeServerError         = "server_error"
)

type ErrorRepository struct {
	notificationEmail string
	logger            *slog.Logger
	help              *helper.HelperRepository
	mailer            *smtp.Mailer
}

func New(notificationEmail string, mailer *smtp.Mailer, logger *slog.Logger, help *helper.HelperRepository) *ErrorRepository {
	return &ErrorRepository{
		notificationEmail: notificationEmail,
		logger:            logger,
		help:              help,
		mailer:            mailer,
	}
}

func (e *ErrorRepository) ReportServerError(r *http.Request, err error) {
	var (
		message = err.Error()
		method  = "background"
		url     = ""
		trace   = string(debug.Stack())
	)

	// Background tasks report without a request.
	if r != nil {
		method = r.Method
		url = r.URL.String()
	}

	requestAttrs := slog.Group("request", "method", method, "url", url)
	e.logger.Error(message, requestAttrs, "trace", trace)

	if e.notificationEmail != "" {
		data := e.help.NewEmailData()
		data["Message"] = message
		data["RequestMethod"] = method
		data["RequestURL"] = url
		data["Trace"] = trace

		err := e.mailer.Send(e.notificationEmail, data, "error-notification.tmpl")
		if err != nil {
			trace = string(debug.Stack())
			e.logger.Error(err.Error(), requestAttrs, "trace", trace)
		}
	}
}

type Error struct {
	w       http.ResponseWriter
	r       *http.Request
	errors  any
	status  int
	code    string
	message string
	headers http.Header
}

func (e *ErrorRepository) ErrorMessage(d *Error) {
	d.message = strings.ToUpper(d.message[:1]) + d.message[1:]

	err := response.JSONErrorResponse(d.w, d.errors, d.message, d.code, d.status, d.headers)
	if err != nil {
		e.ReportServerError(d.r, err)
		d.w.WriteHeader(http.StatusInternalServerError)
	}
}

// DomainError translates a ledger, auth or repository error into its HTTP
// shape. Anything it does not recognise is reported as a server error.
func (e *ErrorRepository) DomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status == 0 {
		e.ServerError(w, r, err)
		return
	}

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  status,
		code:    code,
		message: message,
	})
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, CodeInsufficientBalance, "Insufficient balance to complete this transaction"
	case errors.Is(err, ledger.ErrSameWalletTransfer):
		return http.StatusUnprocessableEntity, CodeSameWalletTransfer, "Sender and recipient wallets must be different"
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, CodeInvalidAmount, "Amount must be greater than zero"
	case errors.Is(err, ledger.ErrWalletNotFound):
		return http.StatusNotFound, CodeWalletNotFound, "Wallet could not be found"
	case errors.Is(err, ledger.ErrTransactionNotFound):
		return http.StatusNotFound, CodeTransactionNotFound, "Transaction could not be found"
	case errors.Is(err, ledger.ErrUnknownReference):
		return http.StatusNotFound, CodeUnknownReference, "No transaction matches this reference"
	case errors.Is(err, ledger.ErrSignatureMismatch):
		return http.StatusUnauthorized, CodeSignatureMismatch, "Webhook signature verification failed"
	case errors.Is(err, ledger.ErrProviderUnavailable):
		return http.StatusBadGateway, CodeProviderUnavailable, "Payment provider is currently unavailable, try again later"
	case errors.Is(err, repository.ErrDuplicateReference):
		return http.StatusConflict, CodeDuplicateReference, "A transaction with this reference already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, CodeInvalidCredentials, "Invalid credentials"
	case errors.Is(err, auth.ErrTokenExpired):
		return http.StatusUnauthorized, CodeTokenExpired, "Credential has expired"
	case errors.Is(err, auth.ErrRevoked):
		return http.StatusUnauthorized, CodeCredentialRevoked, "Credential has been revoked"
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, CodeForbidden, "You do not have permission to perform this action"
	case errors.Is(err, auth.ErrKeyNotFound):
		return http.StatusNotFound, CodeKeyNotFound, "API key could not be found"
	case errors.Is(err, auth.ErrKeyLimitReached):
		return http.StatusConflict, CodeKeyLimitReached, "Maximum number of active API keys reached"
	case errors.Is(err, auth.ErrInvalidExpiry), errors.Is(err, auth.ErrInvalidPermissions):
		return http.StatusUnprocessableEntity, CodeValidationFailed, err.Error()
	}

	return 0, "", ""
}

func (e *ErrorRepository) ServerError(w http.ResponseWriter, r *http.Request, err error) {
	e.ReportServerError(r, err)

	message := "The server encountered a problem and could not process your request"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusInternalServerError,
		code:    CodeServerError,
		message: message,
		headers: nil,
	})
}

func (e *ErrorRepository) NotFound(w http.ResponseWriter, r *http.Request) {
	message := "The requested resource could not be found"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusNotFound,
		message: message,
		headers: nil,
	})
}

func (e *ErrorRepository) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	message := fmt.Sprintf("The %s method is not supported for this resource", r.Method)
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusMethodNotAllowed,
		message: message,
		headers: nil,
	})
}

func (e *ErrorRepository) BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusBadRequest,
		message: err.Error(),
		headers: nil,
	})
}

func (e *ErrorRepository) FailedValidation(w http.ResponseWriter, r *http.Request, v any) {
	message := "Validation failed"

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnprocessableEntity,
		code:    CodeValidationFailed,
		message: message,
		headers: nil,
		errors:  v,
	})
}

func (e *ErrorRepository) InvalidAuthenticationToken(w http.ResponseWriter, r *http.Request) {
	headers := make(http.Header)
	headers.Set("WWW-Authenticate", "Bearer")

	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		code:    CodeInvalidCredentials,
		message: "Invalid authentication token",
		headers: headers,
	})
}

func (e *ErrorRepository) AuthenticationRequired(w http.ResponseWriter, r *http.Request) {
	message := "You must be authenticated to access this resource"
	e.ErrorMessage(&Error{
		w:       w,
		r:       r,
		status:  http.StatusUnauthorized,
		code:    CodeInvalidCredentials,
		message: message,
		headers: nil,
	})
}

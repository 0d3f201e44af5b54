package handler

import (
	dctx "context"
	"log"
	"net/http"
	"time"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/errHandler"
	"github.com/kudiwallet/kudi/internal/helper"
	"github.com/kudiwallet/kudi/internal/models"
	"github.com/kudiwallet/kudi/internal/repository"
	"github.com/kudiwallet/kudi/internal/request"
	"github.com/kudiwallet/kudi/internal/response"
	"github.com/kudiwallet/kudi/internal/smtp"
	"github.com/kudiwallet/kudi/internal/validator"

	"github.com/cradoe/gopass"
)

const sessionTokenTTL = 24 * time.Hour

type authHandler struct {
	db         repository.Database
	gate       *auth.Gate
	errHandler *errHandler.ErrorRepository
	helper     *helper.HelperRepository
	mailer     smtp.MailerInterface
}

func NewAuthHandler(db repository.Database, gate *auth.Gate, errHandler *errHandler.ErrorRepository, helper *helper.HelperRepository, mailer smtp.MailerInterface) *authHandler {
	return &authHandler{
		db:         db,
		gate:       gate,
		errHandler: errHandler,
		helper:     helper,
		mailer:     mailer,
	}
}

// New user registration involves input validation, uniqueness checks on
// email, then inserting the user record and provisioning their wallet in
// one database transaction. A partial signup never leaves a user without a
// wallet.
func (h *authHandler) HandleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		Password  string              `json:"password"`
		FirstName string              `json:"first_name"`
		LastName  string              `json:"last_name"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	// the Validate function returns a slice of errors if the password does
	// not meet the minimum requirements
	_, errs := gopass.Validate(input.Password)
	if errs != nil {
		h.errHandler.FailedValidation(w, r, errs)
		return
	}

	_, found, err := h.db.User().GetByEmail(r.Context(), input.Email)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.IsEmail(input.Email), "Must be a valid email address")
	input.Validator.Check(!found, "Email is already in use")

	input.Validator.Check(validator.NotBlank(input.FirstName), "First name is required")
	input.Validator.Check(validator.NotBlank(input.LastName), "Last name is required")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	hashedPassword, err := gopass.Hash(input.Password)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	var userID string
	var wallet *models.Wallet

	walletNumber, err := helper.GenerateWalletNumber()
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	err = h.db.InTx(r.Context(), func(store repository.Store) error {
		userID, err = store.User().Insert(r.Context(), &models.User{
			FirstName:      input.FirstName,
			LastName:       input.LastName,
			Email:          input.Email,
			HashedPassword: hashedPassword,
		})
		if err != nil {
			return err
		}

		walletID, err := store.Wallet().Insert(r.Context(), &models.Wallet{
			UserID:       userID,
			WalletNumber: walletNumber,
		})
		if err != nil {
			return err
		}

		wallet, _, err = store.Wallet().GetOne(r.Context(), walletID)
		return err
	})
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	h.helper.BackgroundTask(r, func() error {
		err := h.db.Audit().InsertAccountLog(dctx.Background(), &models.AccountLog{
			UserID:      userID,
			Entity:      repository.AccountLogUserEntity,
			Description: "user registered",
		})
		if err != nil {
			log.Printf("Error logging user registration action: %v", err)
			return err
		}

		return nil
	})

	h.helper.BackgroundTask(r, func() error {
		data := h.helper.NewEmailData()
		data["FirstName"] = input.FirstName
		data["WalletNumber"] = wallet.WalletNumber

		return h.mailer.Send(input.Email, data, "welcome.tmpl")
	})

	data := map[string]any{
		"Id":           userID,
		"Email":        input.Email,
		"WalletNumber": wallet.WalletNumber,
	}

	err = response.JSONCreatedResponse(w, data, "Account created successfully")
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

func (h *authHandler) ensureWallet(r *http.Request, userID string) error {
	_, found, err := h.db.Wallet().GetByUserID(r.Context(), userID)
	if err != nil || found {
		return err
	}

	walletNumber, err := helper.GenerateWalletNumber()
	if err != nil {
		return err
	}

	return h.db.InTx(r.Context(), func(store repository.Store) error {
		_, err := store.Wallet().Insert(r.Context(), &models.Wallet{
			UserID:       userID,
			WalletNumber: walletNumber,
		})
		return err
	})
}

func (h *authHandler) HandleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email     string              `json:"email"`
		Password  string              `json:"password"`
		Validator validator.Validator `json:"-"`
	}

	err := request.DecodeJSON(w, r, &input)
	if err != nil {
		h.errHandler.BadRequest(w, r, err)
		return
	}

	input.Validator.Check(validator.NotBlank(input.Email), "Email is required")
	input.Validator.Check(validator.NotBlank(input.Password), "Password is required")

	if input.Validator.HasErrors() {
		h.errHandler.FailedValidation(w, r, input.Validator.Errors)
		return
	}

	user, found, err := h.db.User().GetByEmail(r.Context(), input.Email)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	if !found {
		h.errHandler.DomainError(w, r, auth.ErrInvalidCredentials)
		return
	}

	matches, err := gopass.ComparePasswordAndHash(input.Password, user.HashedPassword)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	if !matches {
		h.errHandler.DomainError(w, r, auth.ErrInvalidCredentials)
		return
	}

	if user.Status == repository.UserAccountLockedStatus {
		h.errHandler.DomainError(w, r, auth.ErrRevoked)
		return
	}

	// Accounts that predate wallet provisioning get one on their first
	// successful login.
	err = h.ensureWallet(r, user.ID)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	token, expiresAt, err := h.gate.IssueSessionToken(user, sessionTokenTTL)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
		return
	}

	data := map[string]any{
		"AuthenticationToken":       token,
		"AuthenticationTokenExpiry": expiresAt.Format(time.RFC3339),
	}

	err = response.JSONOkResponse(w, data, "Login successful", nil)
	if err != nil {
		h.errHandler.ServerError(w, r, err)
	}
}

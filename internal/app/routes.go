package app

import (
	"net/http"

	"github.com/kudiwallet/kudi/internal/auth"
	"github.com/kudiwallet/kudi/internal/handler"
	"github.com/kudiwallet/kudi/internal/middleware"
)

func (app *Application) routes() http.Handler {
	mux := http.NewServeMux()

	middlewareRepo := middleware.New(app.errorHandler, app.Logger, app.Gate)

	healthHandler := handler.NewHealthCheckHandler(app.errorHandler)
	authHandler := handler.NewAuthHandler(app.DB, app.Gate, app.errorHandler, app.helper, app.Mailer)
	walletHandler := handler.NewWalletHandler(app.Ledger, app.Cache, app.errorHandler, &app.Config)
	transactionHandler := handler.NewTransactionHandler(app.DB, app.Ledger, app.Kafka, app.Cache, app.errorHandler, app.helper)
	webhookHandler := handler.NewWebhookHandler(app.DB, app.Ledger, app.Kafka, app.Cache, app.errorHandler, app.helper)
	apiKeyHandler := handler.NewAPIKeyHandler(app.Keys, app.errorHandler)

	mux.HandleFunc("GET /status", healthHandler.HandleHealthCheck)

	mux.HandleFunc("POST /auth/register", authHandler.HandleAuthRegister)
	mux.HandleFunc("POST /auth/login", authHandler.HandleAuthLogin)

	// Webhook deliveries carry their own signature, not a user credential.
	mux.HandleFunc("POST /webhooks/paystack", webhookHandler.HandlePaystackWebhook)

	mux.Handle("GET /wallet/balance",
		middlewareRepo.RequirePermission(auth.PermissionRead, http.HandlerFunc(walletHandler.HandleWalletBalance)))
	mux.Handle("GET /wallet/transactions",
		middlewareRepo.RequirePermission(auth.PermissionRead, http.HandlerFunc(walletHandler.HandleWalletTransactions)))

	mux.Handle("POST /transactions/transfer",
		middlewareRepo.RequirePermission(auth.PermissionTransfer, http.HandlerFunc(transactionHandler.HandleTransferMoney)))
	mux.Handle("POST /transactions/deposit",
		middlewareRepo.RequirePermission(auth.PermissionDeposit, http.HandlerFunc(transactionHandler.HandleDepositInitiate)))
	mux.Handle("GET /transactions/deposit/{reference}",
		middlewareRepo.RequirePermission(auth.PermissionRead, http.HandlerFunc(transactionHandler.HandleDepositVerify)))

	// Key management is session-only; a key can not mint or revoke keys.
	mux.Handle("POST /api-keys",
		middlewareRepo.RequireSession(http.HandlerFunc(apiKeyHandler.HandleAPIKeyCreate)))
	mux.Handle("GET /api-keys",
		middlewareRepo.RequireSession(http.HandlerFunc(apiKeyHandler.HandleAPIKeyList)))
	mux.Handle("GET /api-keys/{id}",
		middlewareRepo.RequireSession(http.HandlerFunc(apiKeyHandler.HandleAPIKeyGet)))
	mux.Handle("DELETE /api-keys/{id}",
		middlewareRepo.RequireSession(http.HandlerFunc(apiKeyHandler.HandleAPIKeyRevoke)))
	mux.Handle("POST /api-keys/{id}/rollover",
		middlewareRepo.RequireSession(http.HandlerFunc(apiKeyHandler.HandleAPIKeyRollover)))

	return middlewareRepo.LogAccess(middlewareRepo.RecoverPanic(middlewareRepo.Authenticate(mux)))
}

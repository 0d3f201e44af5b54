package helper

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

type ErrorReporter interface {
	ReportServerError(r *http.Request, err error)
}

type HelperRepository struct {
	baseUrl    *string
	WG         *sync.WaitGroup
	errHandler ErrorReporter
}

func New(baseUrl *string, wg *sync.WaitGroup, errHandler ErrorReporter) *HelperRepository {
	return &HelperRepository{
		baseUrl:    baseUrl,
		WG:         wg,
		errHandler: errHandler,
	}
}

// SetErrorReporter breaks the construction cycle between the helper and the
// error handler; it must be called before any background task runs.
func (h *HelperRepository) SetErrorReporter(errHandler ErrorReporter) {
	h.errHandler = errHandler
}

func (h *HelperRepository) NewEmailData() map[string]any {
	data := map[string]any{
		"BaseURL": h.baseUrl,
	}

	return data
}

func (h *HelperRepository) BackgroundTask(r *http.Request, fn func() error) {
	h.WG.Add(1)

	go func() {
		defer h.WG.Done()

		defer func() {
			err := recover()
			if err != nil && h.errHandler != nil {
				h.errHandler.ReportServerError(nil, fmt.Errorf("%s", err))
			}
		}()

		err := fn()
		if err != nil && h.errHandler != nil {
			h.errHandler.ReportServerError(r, err)
		}
	}()
}

// NewReference generates a transaction reference such as
// TXN_1735689600_9f86d081. References are unique within the system and
// echoed back by the payment provider.
func NewReference(prefix string) (string, error) {
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().Unix(), hex.EncodeToString(randomBytes)), nil
}

// GenerateWalletNumber produces a 13-digit wallet number.
func GenerateWalletNumber() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(13), nil)

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%013d", n), nil
}

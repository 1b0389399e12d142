// Package payments moves cash into a brand's vault through an external
// payment gateway.
//
// A deposit starts as a pending vault transaction. The gateway is asked for
// a checkout session charging the deposit plus fees; the session id becomes
// the transaction's gateway reference. Confirmation arrives either by the
// client polling VerifyDeposit or by the gateway webhook, and both paths
// settle the transaction only while it is still pending, so repeated or
// racing confirmations are harmless.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/creatorhub/internal/domain"
	"github.com/ignite/creatorhub/internal/metrics"
	"github.com/ignite/creatorhub/internal/pkg/apperr"
	"github.com/ignite/creatorhub/internal/pkg/logger"
	"github.com/ignite/creatorhub/internal/pkg/money"
	"github.com/ignite/creatorhub/internal/service/ledger"
	"github.com/shopspring/decimal"
)

// Sentinel errors for the payments service.
var (
	ErrInvalidAmount       = apperr.New(apperr.KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrGateway             = apperr.New(apperr.KindGateway, "gateway_error", "payment gateway did not return a checkout session")
	ErrGatewayStatus       = apperr.New(apperr.KindGateway, "gateway_error", "could not fetch checkout status")
	ErrNoGatewayReference  = apperr.New(apperr.KindConflict, "no_gateway_reference", "transaction has no checkout session")
	ErrAmountMismatch      = apperr.New(apperr.KindValidation, "amount_mismatch", "gateway amount does not match the deposit")
	ErrTransactionNotFound = ledger.ErrTransactionNotFound
)

// GatewayStatus is the gateway's view of a checkout session.
type GatewayStatus string

const (
	StatusPending GatewayStatus = "pending"
	StatusPaid    GatewayStatus = "paid"
	StatusFailed  GatewayStatus = "failed"
)

// CheckoutRequest asks the gateway to charge Amount.
type CheckoutRequest struct {
	TransactionID string
	BrandID       string
	Amount        decimal.Decimal
	Currency      string
	Description   string
}

// CheckoutSession is where the payer completes the charge.
type CheckoutSession struct {
	ID  string
	URL string
}

// GatewayEvent is a status notification delivered by the gateway.
// TransactionID is the deposit id echoed back from the checkout metadata.
type GatewayEvent struct {
	ReferenceID   string
	TransactionID string
	Status        GatewayStatus
	Amount        *decimal.Decimal
}

// Gateway is the payment provider.
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetCheckoutStatus(ctx context.Context, sessionID string) (GatewayStatus, error)
}

// Service implements deposits.
type Service struct {
	store    ledger.Store
	gateway  Gateway
	currency string
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCurrency sets the ISO currency used for checkout. Defaults to USD.
func WithCurrency(c string) Option {
	return func(s *Service) {
		if c != "" {
			s.currency = c
		}
	}
}

// NewService creates a payments service.
func NewService(store ledger.Store, gateway Gateway, opts ...Option) *Service {
	s := &Service{
		store:    store,
		gateway:  gateway,
		currency: "USD",
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Deposit is a started vault deposit.
type Deposit struct {
	Transaction domain.Transaction `json:"transaction"`
	Allocation  money.Allocation   `json:"allocation"`
	CheckoutURL string             `json:"checkout_url"`
	SessionID   string             `json:"session_id"`
}

// InitiateDeposit records a pending vault deposit of amount and opens a
// checkout session charging amount plus the platform and processing fees.
// If the gateway fails or returns no URL, the transaction is marked failed
// and ErrGateway is returned.
func (s *Service) InitiateDeposit(ctx context.Context, brandID, userID string, amount decimal.Decimal) (dep *Deposit, err error) {
	defer func() { metrics.RecordLedgerOp("deposit", err, apperr.KindOf(err) != apperr.KindInternal) }()

	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	amount = money.Round(amount)
	alloc := money.AllocationTotals(amount)
	now := s.now()

	tx := &domain.Transaction{
		ID:              uuid.New().String(),
		BrandID:         brandID,
		UserID:          userID,
		Amount:          amount,
		Type:            domain.TxDeposit,
		Status:          domain.TxPending,
		GatewayProvider: s.gateway.Name(),
		Description:     fmt.Sprintf("Vault deposit (charged %s incl. fees)", money.Format(alloc.TotalRequired)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.store.WithinTx(ctx, func(ltx ledger.Tx) error {
		if err := ltx.InsertTransaction(ctx, tx); err != nil {
			return fmt.Errorf("insert deposit: %w", err)
		}
		return ledger.Audit(ctx, ltx, userID, "transaction", tx.ID, "deposit.initiated", map[string]interface{}{
			"brand_id":       brandID,
			"amount":         money.Format(amount),
			"total_required": money.Format(alloc.TotalRequired),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	session, gwErr := s.gateway.CreateCheckoutSession(ctx, CheckoutRequest{
		TransactionID: tx.ID,
		BrandID:       brandID,
		Amount:        alloc.TotalRequired,
		Currency:      s.currency,
		Description:   "Vault deposit",
	})
	if gwErr != nil || session == nil || session.URL == "" {
		reason := "empty checkout url"
		if gwErr != nil {
			reason = gwErr.Error()
		}
		logger.Error("checkout session failed", "transaction_id", tx.ID, "brand_id", brandID, "error", reason)
		tx.Status = domain.TxFailed
		tx.UpdatedAt = s.now()
		if err := s.settle(ctx, tx, "deposit.failed"); err != nil && !errors.Is(err, ledger.ErrTransactionSettled) {
			logger.Error("mark deposit failed", "transaction_id", tx.ID, "error", err.Error())
		}
		if gwErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrGateway, gwErr)
		}
		return nil, ErrGateway
	}

	ref := session.ID
	tx.GatewayReference = &ref
	tx.UpdatedAt = s.now()
	err = s.store.WithinTx(ctx, func(ltx ledger.Tx) error {
		return ltx.SettleTransaction(ctx, tx)
	})
	if errors.Is(err, ledger.ErrTransactionSettled) {
		// The webhook won the race and stored the reference itself.
		settled, gerr := s.store.GetTransaction(ctx, tx.ID)
		if gerr != nil {
			return nil, gerr
		}
		tx, err = settled, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record checkout session: %w", err)
	}

	logger.Info("deposit initiated", "transaction_id", tx.ID, "brand_id", brandID, "amount", money.Format(amount))
	return &Deposit{Transaction: *tx, Allocation: alloc, CheckoutURL: session.URL, SessionID: session.ID}, nil
}

// VerifyDeposit polls the gateway for a pending deposit and settles it.
// Settled deposits are returned unchanged. A deposit owned by another
// brand is reported as not found.
func (s *Service) VerifyDeposit(ctx context.Context, brandID, transactionID string) (*domain.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.BrandID != brandID || tx.Type != domain.TxDeposit {
		return nil, ErrTransactionNotFound
	}
	if tx.Status != domain.TxPending {
		return tx, nil
	}
	if tx.GatewayReference == nil {
		return nil, ErrNoGatewayReference
	}

	status, err := s.gateway.GetCheckoutStatus(ctx, *tx.GatewayReference)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayStatus, err)
	}
	return s.apply(ctx, tx, status)
}

// HandleGatewayEvent settles the deposit referenced by a webhook. A webhook
// can arrive before the session reference is saved, so an unknown reference
// falls back to the event's transaction id. Unknown deposits return
// ErrTransactionNotFound; already settled deposits are a no-op.
func (s *Service) HandleGatewayEvent(ctx context.Context, ev GatewayEvent) (*domain.Transaction, error) {
	tx, err := s.store.GetTransactionByReference(ctx, s.gateway.Name(), ev.ReferenceID)
	if errors.Is(err, ErrTransactionNotFound) && ev.TransactionID != "" {
		tx, err = s.depositAwaitingReference(ctx, ev)
	}
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxPending {
		return tx, nil
	}
	if ev.Amount != nil && ev.Status == StatusPaid {
		want := money.AllocationTotals(tx.Amount).TotalRequired
		if !money.Round(*ev.Amount).Equal(want) {
			logger.Warn("gateway amount mismatch", "transaction_id", tx.ID,
				"expected", money.Format(want), "got", money.Format(*ev.Amount))
			return nil, ErrAmountMismatch
		}
	}
	return s.apply(ctx, tx, ev.Status)
}

// depositAwaitingReference loads the deposit named by ev.TransactionID and
// attaches ev.ReferenceID to it. A deposit from another gateway or already
// bound to a different session is not found.
func (s *Service) depositAwaitingReference(ctx context.Context, ev GatewayEvent) (*domain.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, ev.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Type != domain.TxDeposit || tx.GatewayProvider != s.gateway.Name() {
		return nil, ErrTransactionNotFound
	}
	if tx.GatewayReference != nil && *tx.GatewayReference != ev.ReferenceID {
		return nil, ErrTransactionNotFound
	}
	if ev.ReferenceID != "" {
		ref := ev.ReferenceID
		tx.GatewayReference = &ref
	}
	logger.Info("deposit resolved by transaction id", "transaction_id", tx.ID, "reference_id", ev.ReferenceID)
	return tx, nil
}

func (s *Service) apply(ctx context.Context, tx *domain.Transaction, status GatewayStatus) (*domain.Transaction, error) {
	action := ""
	switch status {
	case StatusPaid:
		tx.Status, action = domain.TxCompleted, "deposit.completed"
	case StatusFailed:
		tx.Status, action = domain.TxFailed, "deposit.failed"
	default:
		return tx, nil
	}
	tx.UpdatedAt = s.now()

	err := s.settle(ctx, tx, action)
	if errors.Is(err, ledger.ErrTransactionSettled) {
		return s.store.GetTransaction(ctx, tx.ID)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("deposit settled", "transaction_id", tx.ID, "brand_id", tx.BrandID, "status", string(tx.Status))
	return tx, nil
}

// settle re-reads the transaction under lock so a concurrent confirmation
// is observed as ErrTransactionSettled.
func (s *Service) settle(ctx context.Context, tx *domain.Transaction, action string) error {
	return s.store.WithinTx(ctx, func(ltx ledger.Tx) error {
		current, err := ltx.GetTransactionForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.TxPending {
			return ledger.ErrTransactionSettled
		}
		if err := ltx.SettleTransaction(ctx, tx); err != nil {
			return err
		}
		return ledger.Audit(ctx, ltx, tx.UserID, "transaction", tx.ID, action, map[string]interface{}{
			"brand_id": tx.BrandID,
			"amount":   money.Format(tx.Amount),
		}, tx.UpdatedAt)
	})
}

package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/customer-identity-bfa/internal/domain"
	"github.com/boddenberg/customer-identity-bfa/internal/port"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// StatusService handles the explicit status writes: admin changes and the
// reservation-created hook.
type StatusService struct {
	accounts     port.AccountStore
	reservations port.ReservationStore
	validate     *validator.Validate
	now          func() time.Time
	logger       *zap.Logger
}

func NewStatusService(accounts port.AccountStore, reservations port.ReservationStore, logger *zap.Logger) *StatusService {
	return &StatusService{
		accounts:     accounts,
		reservations: reservations,
		validate:     validator.New(),
		now:          time.Now,
		logger:       logger,
	}
}

// WithClock overrides the time source. Used by tests.
func (s *StatusService) WithClock(now func() time.Time) *StatusService {
	s.now = now
	return s
}

// SetStatus writes any status with a reason and timestamp.
func (s *StatusService) SetStatus(ctx context.Context, accountID int64, upd domain.StatusUpdate) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "StatusService.SetStatus")
	defer span.End()

	upd.Status = strings.ToLower(strings.TrimSpace(upd.Status))
	upd.Reason = strings.TrimSpace(upd.Reason)
	if err := s.validate.Struct(upd); err != nil {
		return nil, validationError(err)
	}
	status, _ := domain.ParseAccountStatus(upd.Status)

	at := s.now()
	change := domain.StatusChange{To: status, Reason: upd.Reason, At: at}
	if status == domain.StatusActive {
		change.LastActiveAt = &at
	}
	if _, err := s.accounts.UpdateAccountStatus(ctx, accountID, change); err != nil {
		return nil, err
	}

	s.logger.Info("account status set",
		zap.Int64("account_id", accountID),
		zap.String("status", string(status)),
		zap.String("reason", upd.Reason),
	)
	return s.accounts.GetAccount(ctx, accountID)
}

// RecordReservationCreated applies the first-reservation transition. It is
// called after the reservation is stored, so the new reservation is already
// counted. The bool reports whether the status changed.
func (s *StatusService) RecordReservationCreated(ctx context.Context, accountID int64) (*domain.Account, bool, error) {
	ctx, span := tracer.Start(ctx, "StatusService.RecordReservationCreated")
	defer span.End()

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	if account.Namespace != domain.NamespaceGuide {
		return nil, false, &domain.ErrValidation{Field: "accountId", Message: "reservation hook applies to guide accounts only"}
	}

	reservations, err := s.reservations.ListReservationsByAccounts(ctx, []int64{accountID})
	if err != nil {
		return nil, false, err
	}
	prior := len(reservations) - 1
	if prior < 0 {
		prior = 0
	}

	next, ok := StatusAfterReservation(*account, prior)
	if !ok {
		return account, false, nil
	}

	at := s.now()
	applied, err := s.accounts.UpdateAccountStatus(ctx, accountID, domain.StatusChange{
		From:         []domain.AccountStatus{account.Status},
		To:           next,
		Reason:       "first reservation",
		At:           at,
		LastActiveAt: &at,
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		return nil, false, &domain.ErrConflict{Message: fmt.Sprintf("account %d status changed concurrently", accountID)}
	}

	s.logger.Info("account moved to package",
		zap.Int64("account_id", accountID),
		zap.String("from", string(account.Status)),
	)
	updated, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return updated, true, nil
}

func validationError(err error) error {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		return &domain.ErrValidation{Field: strings.ToLower(fe.Field()), Message: fmt.Sprintf("failed %q validation", fe.Tag())}
	}
	return &domain.ErrValidation{Field: "body", Message: err.Error()}
}

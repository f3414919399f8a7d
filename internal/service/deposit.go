package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
)

const payURLFormat = "https://img.vietqr.io/image/%s-%s-%s.png?amount=%d&addInfo=%s"

// CreateDepositIntent создаёт ожидающее пополнение и платёжную ссылку.
// Код пополнения одновременно служит назначением платежа.
func (s *Service) CreateDepositIntent(ctx context.Context, userID, amount int64, method string, kind model.DepositKind) (*model.Deposit, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}
	if !kind.Valid() {
		return nil, apperr.Validation("unknown deposit kind %q", kind)
	}

	d := &model.Deposit{
		Code:            depositCode(kind, userID),
		UserID:          userID,
		Kind:            kind,
		Method:          method,
		RequestedAmount: amount,
		Status:          model.DepositStatusPending,
		CreatedAt:       s.now(),
	}
	if kind.CreditsWallet() {
		d.CreditedAmount = decimal.NewFromInt(amount).Mul(s.settings.ExchangeRate).Round(0).IntPart()
	}
	d.PayURL = s.payURL(amount, d.Code)

	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		return tx.InsertDeposit(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit intent created",
		zap.String("code", d.Code),
		zap.Int64("userID", userID),
		zap.Int64("amount", amount),
		zap.String("kind", string(kind)),
	)
	return d, nil
}

func depositCode(kind model.DepositKind, userID int64) string {
	prefix := "NAP"
	if kind == model.DepositKindDonate {
		prefix = "DONATE"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s_%d_%s", prefix, userID, id[:16])
}

func (s *Service) payURL(amount int64, code string) string {
	p := s.settings.Payment
	return fmt.Sprintf(payURLFormat,
		url.PathEscape(p.BankID), url.PathEscape(p.AccountNo), url.PathEscape(p.QRTemplate),
		amount, url.QueryEscape(code))
}

// ConfirmDeposit отмечает пополнение успешным. Статус проверяется на
// заблокированной строке, поэтому повторные и параллельные вызовы
// зачисляют средства не более одного раза.
func (s *Service) ConfirmDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	var (
		res     *model.Deposit
		applied bool
	)

	err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
		applied = false

		d, err := tx.LockDeposit(ctx, code)
		if err != nil {
			return err
		}
		res = d

		switch d.Status {
		case model.DepositStatusSuccess:
			return nil
		case model.DepositStatusFailed:
			return fmt.Errorf("%w: deposit %s already rejected", apperr.ErrInvalidTransition, code)
		}

		now := s.now()
		d.Status = model.DepositStatusSuccess
		d.CompletedAt = &now
		if err := tx.UpdateDeposit(ctx, d); err != nil {
			return err
		}

		if d.Kind.CreditsWallet() {
			w, err := s.credit(ctx, tx, d.UserID, d.CreditedAmount, d.RequestedAmount)
			if err != nil {
				return err
			}
			oldLifetime := w.LifetimeDeposited - d.RequestedAmount
			if err := s.rewardGrowth(ctx, tx, out, d.UserID, oldLifetime, w.LifetimeDeposited); err != nil {
				return err
			}
		}

		out.add(notify.KindDepositConfirmed, d.UserID, "deposit confirmed", map[string]any{
			"code":     d.Code,
			"kind":     string(d.Kind),
			"credited": d.CreditedAmount,
		})
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		s.logger.Info("deposit confirmed",
			zap.String("code", code),
			zap.Int64("userID", res.UserID),
			zap.Int64("credited", res.CreditedAmount),
		)
	}
	return res, nil
}

// RejectDeposit отклоняет ожидающее пополнение без движения средств.
func (s *Service) RejectDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	var res *model.Deposit

	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		d, err := tx.LockDeposit(ctx, code)
		if err != nil {
			return err
		}
		if d.Status != model.DepositStatusPending {
			return fmt.Errorf("%w: deposit %s is %s", apperr.ErrInvalidTransition, code, d.Status)
		}

		now := s.now()
		d.Status = model.DepositStatusFailed
		d.CompletedAt = &now
		res = d
		return tx.UpdateDeposit(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit rejected", zap.String("code", code), zap.Int64("userID", res.UserID))
	return res, nil
}

// GetDeposit возвращает пополнение по коду.
func (s *Service) GetDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	return s.store.GetDeposit(ctx, code)
}

// ListDeposits возвращает историю пополнений пользователя.
func (s *Service) ListDeposits(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return s.store.ListDepositsByUser(ctx, userID)
}

// ListAllDeposits возвращает пополнения всех пользователей для администратора.
func (s *Service) ListAllDeposits(ctx context.Context) ([]model.Deposit, error) {
	return s.store.ListAllDeposits(ctx)
}

// MonthlyDepositStats возвращает суммы успешных пополнений по месяцам.
func (s *Service) MonthlyDepositStats(ctx context.Context, userID int64) ([]model.MonthlyDeposit, error) {
	return s.store.MonthlyDeposits(ctx, userID)
}

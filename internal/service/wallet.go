package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
)

// OpenWallet создаёт пустой кошелёк пользователя. Повторный вызов возвращает существующий.
func (s *Service) OpenWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	if userID <= 0 {
		return nil, apperr.Validation("user id must be positive")
	}

	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		_, err := tx.CreateWallet(ctx, userID, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetWallet(ctx, userID)
}

// GetWallet возвращает кошелёк пользователя.
func (s *Service) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

// GetBalance возвращает баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// Credit выполняет административное зачисление. Накопленная сумма пополнений не меняется.
func (s *Service) Credit(ctx context.Context, userID, amount int64) (*model.Wallet, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	var res *model.Wallet
	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		w, err := s.credit(ctx, tx, userID, amount, 0)
		res = w
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet credited", zap.Int64("userID", userID), zap.Int64("amount", amount))
	return res, nil
}

// Debit выполняет административное списание.
func (s *Service) Debit(ctx context.Context, userID, amount int64) (*model.Wallet, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	var res *model.Wallet
	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		w, err := s.debit(ctx, tx, userID, amount)
		res = w
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet debited", zap.Int64("userID", userID), zap.Int64("amount", amount))
	return res, nil
}

// credit зачисляет amount и увеличивает накопленную сумму пополнений на lifetime.
func (s *Service) credit(ctx context.Context, tx repository.Tx, userID, amount, lifetime int64) (*model.Wallet, error) {
	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	w.Balance += amount
	w.LifetimeDeposited += lifetime
	w.UpdatedAt = s.now()
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) debit(ctx context.Context, tx repository.Tx, userID, amount int64) (*model.Wallet, error) {
	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	if amount > w.Balance {
		return nil, fmt.Errorf("%w: user %d has %d, needs %d", apperr.ErrInsufficientFunds, userID, w.Balance, amount)
	}

	w.Balance -= amount
	w.UpdatedAt = s.now()
	if err := tx.UpdateWallet(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

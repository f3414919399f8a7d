package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
	"github.com/mmeshcher/chatbox-ledger/internal/notify"
	"github.com/mmeshcher/chatbox-ledger/internal/repository"
	"github.com/mmeshcher/chatbox-ledger/internal/tier"
	"github.com/mmeshcher/chatbox-ledger/internal/validation"
	"github.com/mmeshcher/chatbox-ledger/internal/voucher"
)

const (
	defaultVoucherTTL        = 30 * 24 * time.Hour
	maxVoucherDescriptionLen = 255
)

// rewardGrowth выдаёт ваучеры за все пороги, пересечённые при росте
// накопленной суммы с oldTotal до newTotal.
func (s *Service) rewardGrowth(ctx context.Context, tx repository.Tx, out *outbox, userID, oldTotal, newTotal int64) error {
	for _, level := range tier.Crossed(oldTotal, newTotal) {
		if _, err := s.issueTierVoucher(ctx, tx, out, userID, level); err != nil {
			return err
		}
	}
	return nil
}

// issueTierVoucher создаёт ваучер уровня, если его ещё нет. Код ваучера
// детерминирован, поэтому повторная выдача невозможна.
func (s *Service) issueTierVoucher(ctx context.Context, tx repository.Tx, out *outbox, userID int64, level tier.Level) (bool, error) {
	now := s.now()
	owner := userID
	v := &model.Voucher{
		Code:            tier.VoucherCode(level, userID),
		Description:     fmt.Sprintf("%s membership reward", level.Name),
		OwnerID:         &owner,
		DiscountPercent: level.Percent,
		UsageLimit:      1,
		IsActive:        true,
		ExpirationDate:  now.Add(defaultVoucherTTL),
		CreatedAt:       now,
	}

	inserted, err := tx.InsertVoucher(ctx, v)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	out.add(notify.KindLevelUp, userID, fmt.Sprintf("reached %s tier", level.Name), map[string]any{
		"level": level.Name,
	})
	out.add(notify.KindVoucherIssued, userID, v.Description, map[string]any{
		"code":    v.Code,
		"percent": level.Percent.String(),
	})
	return true, nil
}

// SyncTierVouchers досоздаёт недостающие ваучеры уровней для всех кошельков.
// Каждый пользователь обрабатывается в своей транзакции. Возвращает число выданных ваучеров.
func (s *Service) SyncTierVouchers(ctx context.Context) (int, error) {
	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wallets: %w", err)
	}

	var (
		issued int
		errs   []error
	)
	for _, w := range wallets {
		if len(tier.Reached(w.LifetimeDeposited)) == 0 {
			continue
		}

		var n int
		err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
			n = 0
			locked, err := tx.LockWallet(ctx, w.UserID)
			if err != nil {
				return err
			}
			for _, level := range tier.Reached(locked.LifetimeDeposited) {
				ok, err := s.issueTierVoucher(ctx, tx, out, w.UserID, level)
				if err != nil {
					return err
				}
				if ok {
					n++
				}
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return issued, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("sync user %d: %w", w.UserID, err))
			continue
		}
		issued += n
	}

	if issued > 0 {
		s.logger.Info("tier vouchers backfilled", zap.Int("issued", issued))
	}
	return issued, errors.Join(errs...)
}

const monthlyVoucherPrefix = "MONTH_"

// MonthlyVoucherCode возвращает код ежемесячного ваучера пользователя.
func MonthlyVoucherCode(month time.Month, year int, userID int64) string {
	return fmt.Sprintf("%s%d_%d_%d", monthlyVoucherPrefix, int(month), year, userID)
}

// reservedVoucherCode сообщает, занят ли префикс кода автоматическими наградами.
// Ручной ваучер с таким кодом заблокировал бы выдачу награды.
func reservedVoucherCode(code string) bool {
	upper := strings.ToUpper(code)
	return strings.HasPrefix(upper, tier.VoucherCodePrefix) || strings.HasPrefix(upper, monthlyVoucherPrefix)
}

func endOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location()).Add(-time.Second)
}

// IssueMonthlyVouchers выдаёт каждому пользователю, достигшему хотя бы одного
// уровня, ваучер наивысшего уровня на текущий месяц. Повторный запуск в том же
// месяце ничего не выдаёт.
func (s *Service) IssueMonthlyVouchers(ctx context.Context) (int, error) {
	wallets, err := s.store.ListWallets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list wallets: %w", err)
	}

	now := s.now()
	var (
		issued int
		errs   []error
	)
	for _, w := range wallets {
		level, ok := tier.Highest(w.LifetimeDeposited)
		if !ok {
			continue
		}

		owner := w.UserID
		v := &model.Voucher{
			Code:            MonthlyVoucherCode(now.Month(), now.Year(), w.UserID),
			Description:     fmt.Sprintf("%s member voucher for %02d/%d", level.Name, int(now.Month()), now.Year()),
			OwnerID:         &owner,
			DiscountPercent: level.Percent,
			UsageLimit:      1,
			IsActive:        true,
			ExpirationDate:  endOfMonth(now),
			CreatedAt:       now,
		}

		var inserted bool
		err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
			ok, err := tx.InsertVoucher(ctx, v)
			if err != nil {
				return err
			}
			inserted = ok
			if ok {
				out.add(notify.KindVoucherIssued, w.UserID, v.Description, map[string]any{
					"code":    v.Code,
					"percent": level.Percent.String(),
				})
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return issued, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("monthly voucher for user %d: %w", w.UserID, err))
			continue
		}
		if inserted {
			issued++
		}
	}

	if issued > 0 {
		s.logger.Info("monthly vouchers issued", zap.Int("issued", issued), zap.String("month", now.Format("2006-01")))
	}
	return issued, errors.Join(errs...)
}

// VoucherInput описывает ваучер, выдаваемый администратором.
// Пустой код, нулевой лимит и пустой срок заменяются значениями по умолчанию.
type VoucherInput struct {
	Code            string
	Description     string
	OwnerID         *int64
	DiscountPercent decimal.Decimal
	DiscountAmount  int64
	MinOrderAmount  int64
	UsageLimit      int
	ExpirationDate  *time.Time
}

// IssueVoucher создаёт ваучер вручную. OwnerID == nil создаёт общий ваучер.
func (s *Service) IssueVoucher(ctx context.Context, in VoucherInput) (*model.Voucher, error) {
	if in.DiscountPercent.IsNegative() || in.DiscountPercent.GreaterThan(decimal.NewFromInt(1)) {
		return nil, apperr.Validation("discount percent must be within [0, 1]")
	}
	if in.DiscountAmount < 0 || in.MinOrderAmount < 0 || in.UsageLimit < 0 {
		return nil, apperr.Validation("amounts and usage limit must not be negative")
	}

	now := s.now()
	v := &model.Voucher{
		Code:            in.Code,
		Description:     in.Description,
		OwnerID:         in.OwnerID,
		DiscountPercent: in.DiscountPercent,
		DiscountAmount:  in.DiscountAmount,
		MinOrderAmount:  in.MinOrderAmount,
		UsageLimit:      in.UsageLimit,
		IsActive:        true,
		ExpirationDate:  now.Add(defaultVoucherTTL),
		CreatedAt:       now,
	}
	if v.Code == "" {
		v.Code = "ADMIN_" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	}
	if !validation.IsValidCode(v.Code) {
		return nil, apperr.Validation("malformed voucher code %q", v.Code)
	}
	if reservedVoucherCode(v.Code) {
		return nil, apperr.Validation("voucher code %q uses a reserved prefix", v.Code)
	}
	if v.Description == "" {
		v.Description = "Admin voucher"
	}
	if v.UsageLimit == 0 {
		v.UsageLimit = 1
	}
	if in.ExpirationDate != nil {
		if !in.ExpirationDate.After(now) {
			return nil, apperr.Validation("expiration date must be in the future")
		}
		v.ExpirationDate = *in.ExpirationDate
	}

	err := s.inTx(ctx, func(tx repository.Tx, out *outbox) error {
		if v.OwnerID != nil {
			if _, err := tx.GetWallet(ctx, *v.OwnerID); err != nil {
				return err
			}
		}

		inserted, err := tx.InsertVoucher(ctx, v)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: voucher %s already exists", apperr.ErrConflict, v.Code)
		}

		if v.OwnerID != nil {
			out.add(notify.KindVoucherIssued, *v.OwnerID, v.Description, map[string]any{"code": v.Code})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher issued", zap.String("code", v.Code), zap.Bool("shared", v.OwnerID == nil))
	return v, nil
}

// ListVouchers возвращает личные нескрытые ваучеры пользователя и доступные общие.
func (s *Service) ListVouchers(ctx context.Context, userID int64) ([]model.Voucher, error) {
	all, err := s.store.ListVouchersForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res := make([]model.Voucher, 0, len(all))
	for _, v := range all {
		if v.OwnerID == nil && !voucher.Available(&v, now) {
			continue
		}
		res = append(res, v)
	}
	return res, nil
}

// ListAllVouchers возвращает все ваучеры для администратора.
func (s *Service) ListAllVouchers(ctx context.Context) ([]model.Voucher, error) {
	return s.store.ListVouchers(ctx)
}

// VoucherUpdate описывает правку ваучера администратором. Nil-поле не меняется.
type VoucherUpdate struct {
	Description    *string
	IsActive       *bool
	UsageLimit     *int
	ExpirationDate *time.Time
}

// UpdateVoucher меняет описание, активность, срок действия и лимит погашений.
// Лимит нельзя опустить ниже числа уже выполненных погашений.
func (s *Service) UpdateVoucher(ctx context.Context, voucherID int64, upd VoucherUpdate) (*model.Voucher, error) {
	if upd.Description != nil && len(*upd.Description) > maxVoucherDescriptionLen {
		return nil, apperr.Validation("description is too long")
	}

	var res *model.Voucher
	err := s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		v, err := tx.LockVoucher(ctx, voucherID)
		if err != nil {
			return err
		}

		if upd.Description != nil {
			v.Description = *upd.Description
		}
		if upd.IsActive != nil {
			v.IsActive = *upd.IsActive
		}
		if upd.UsageLimit != nil {
			if *upd.UsageLimit < 1 {
				return apperr.Validation("usage limit must be positive")
			}
			if *upd.UsageLimit < v.UsedCount {
				return apperr.Validation("usage limit %d is below used count %d", *upd.UsageLimit, v.UsedCount)
			}
			v.UsageLimit = *upd.UsageLimit
		}
		if upd.ExpirationDate != nil {
			v.ExpirationDate = *upd.ExpirationDate
		}

		if err := tx.UpdateVoucher(ctx, v); err != nil {
			return err
		}
		res = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("voucher updated", zap.Int64("voucherID", res.ID), zap.String("code", res.Code))
	return res, nil
}

// DeactivateVoucher выключает ваучер. Запись сохраняется, потому что на код
// ссылаются оформленные заказы.
func (s *Service) DeactivateVoucher(ctx context.Context, voucherID int64) (*model.Voucher, error) {
	inactive := false
	return s.UpdateVoucher(ctx, voucherID, VoucherUpdate{IsActive: &inactive})
}

// HideVoucher скрывает личный ваучер из списка владельца. Погашаемость не меняется.
func (s *Service) HideVoucher(ctx context.Context, voucherID, userID int64) error {
	return s.inTx(ctx, func(tx repository.Tx, _ *outbox) error {
		v, err := tx.LockVoucher(ctx, voucherID)
		if err != nil {
			return err
		}
		if !v.OwnedBy(userID) {
			return fmt.Errorf("%w: voucher %d is not owned by user %d", apperr.ErrUnauthorized, voucherID, userID)
		}
		if v.DeletedByUser {
			return nil
		}
		v.DeletedByUser = true
		return tx.UpdateVoucher(ctx, v)
	})
}

// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/chatbox-ledger/internal/apperr"
	"github.com/mmeshcher/chatbox-ledger/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	txMaxRetries  = 3
	txRetryBase   = 50 * time.Millisecond
	txRetryJitter = 25 * time.Millisecond
)

// dbtx описывает общее подмножество pgxpool.Pool и pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queries реализует запросы поверх пула или открытой транзакции.
type queries struct {
	db dbtx
}

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	*queries
	pool *pgxpool.Pool
}

var _ Store = (*PostgresRepository)(nil)

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{queries: &queries{db: pool}, pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// InTx выполняет fn в транзакции. Сбой сериализации, взаимная блокировка
// и конфликт версии откатывают транзакцию и повторяют fn целиком.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	backoff := retry.WithMaxRetries(txMaxRetries, retry.WithJitter(txRetryJitter, retry.NewExponential(txRetryBase)))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.runTx(ctx, fn)
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (r *PostgresRepository) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrVersionConflict) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	// Ошибка соединения до отправки запроса: транзакция точно не применена.
	return pgconn.SafeToRetry(err)
}

func notFound(what string, key any) error {
	return fmt.Errorf("%w: %s %v", apperr.ErrNotFound, what, key)
}

// ---- кошельки ----

const walletColumns = `user_id, balance, lifetime_deposited, version, updated_at`

func scanWallet(row pgx.Row) (*model.Wallet, error) {
	var w model.Wallet
	if err := row.Scan(&w.UserID, &w.Balance, &w.LifetimeDeposited, &w.Version, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetWallet возвращает кошелёк пользователя.
func (q *queries) GetWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("wallet", userID)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return w, nil
}

// ListWallets возвращает все кошельки.
func (q *queries) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	rows, err := q.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	var res []model.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		res = append(res, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CreateWallet создаёт пустой кошелёк. Возвращает false, если кошелёк уже есть.
func (q *queries) CreateWallet(ctx context.Context, userID int64, now time.Time) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`INSERT INTO wallets (user_id, updated_at) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, now,
	)
	if err != nil {
		return false, fmt.Errorf("insert wallet: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// LockWallet блокирует строку кошелька до конца транзакции.
func (q *queries) LockWallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	w, err := scanWallet(q.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("wallet", userID)
		}
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// UpdateWallet сохраняет баланс, если версия строки не изменилась, и увеличивает версию.
func (q *queries) UpdateWallet(ctx context.Context, w *model.Wallet) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE wallets
		 SET balance = $2, lifetime_deposited = $3, version = version + 1, updated_at = $4
		 WHERE user_id = $1 AND version = $5`,
		w.UserID, w.Balance, w.LifetimeDeposited, w.UpdatedAt, w.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return fmt.Errorf("%w: wallet %d", apperr.ErrInsufficientFunds, w.UserID)
		}
		return fmt.Errorf("update wallet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: wallet %d", ErrVersionConflict, w.UserID)
	}
	w.Version++
	return nil
}

// ---- пополнения ----

const depositColumns = `id, code, user_id, kind, method, requested_amount, credited_amount, status, pay_url, created_at, completed_at`

func scanDeposit(row pgx.Row) (*model.Deposit, error) {
	var (
		d      model.Deposit
		kind   string
		status string
	)
	err := row.Scan(&d.ID, &d.Code, &d.UserID, &kind, &d.Method, &d.RequestedAmount,
		&d.CreditedAmount, &status, &d.PayURL, &d.CreatedAt, &d.CompletedAt)
	if err != nil {
		return nil, err
	}
	d.Kind = model.DepositKind(kind)
	d.Status = model.DepositStatus(status)
	return &d, nil
}

// GetDeposit возвращает пополнение по коду.
func (q *queries) GetDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("deposit", code)
		}
		return nil, fmt.Errorf("get deposit: %w", err)
	}
	return d, nil
}

// ListDepositsByUser возвращает пополнения пользователя, новые первыми.
func (q *queries) ListDepositsByUser(ctx context.Context, userID int64) ([]model.Deposit, error) {
	return q.selectDeposits(ctx, ` WHERE user_id = $1`, userID)
}

// ListAllDeposits возвращает пополнения всех пользователей, новые первыми.
func (q *queries) ListAllDeposits(ctx context.Context) ([]model.Deposit, error) {
	return q.selectDeposits(ctx, ``)
}

func (q *queries) selectDeposits(ctx context.Context, where string, args ...any) ([]model.Deposit, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+depositColumns+` FROM deposits`+where+` ORDER BY created_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select deposits: %w", err)
	}
	defer rows.Close()

	var res []model.Deposit
	for rows.Next() {
		d, err := scanDeposit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan deposit: %w", err)
		}
		res = append(res, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// MonthlyDeposits суммирует успешные пополнения кошелька по месяцам.
func (q *queries) MonthlyDeposits(ctx context.Context, userID int64) ([]model.MonthlyDeposit, error) {
	rows, err := q.db.Query(ctx,
		`SELECT to_char(date_trunc('month', completed_at AT TIME ZONE 'UTC'), 'YYYY-MM') AS month,
		        COALESCE(SUM(requested_amount), 0)
		 FROM deposits
		 WHERE user_id = $1 AND status = $2 AND kind = $3 AND completed_at IS NOT NULL
		 GROUP BY month
		 ORDER BY month`,
		userID, string(model.DepositStatusSuccess), string(model.DepositKindDeposit),
	)
	if err != nil {
		return nil, fmt.Errorf("select monthly deposits: %w", err)
	}
	defer rows.Close()

	var res []model.MonthlyDeposit
	for rows.Next() {
		var m model.MonthlyDeposit
		if err := rows.Scan(&m.Month, &m.Total); err != nil {
			return nil, fmt.Errorf("scan monthly deposit: %w", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// InsertDeposit сохраняет новое пополнение и заполняет его идентификатор.
func (q *queries) InsertDeposit(ctx context.Context, d *model.Deposit) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO deposits (code, user_id, kind, method, requested_amount, credited_amount, status, pay_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		d.Code, d.UserID, string(d.Kind), d.Method, d.RequestedAmount, d.CreditedAmount,
		string(d.Status), d.PayURL, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case pgerrcode.UniqueViolation:
				return fmt.Errorf("%w: deposit %s", apperr.ErrConflict, d.Code)
			case pgerrcode.ForeignKeyViolation:
				return notFound("wallet", d.UserID)
			}
		}
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

// LockDeposit блокирует строку пополнения до конца транзакции.
func (q *queries) LockDeposit(ctx context.Context, code string) (*model.Deposit, error) {
	d, err := scanDeposit(q.db.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("deposit", code)
		}
		return nil, fmt.Errorf("lock deposit: %w", err)
	}
	return d, nil
}

// UpdateDeposit сохраняет статус и время завершения пополнения.
func (q *queries) UpdateDeposit(ctx context.Context, d *model.Deposit) error {
	_, err := q.db.Exec(ctx,
		`UPDATE deposits SET status = $2, credited_amount = $3, completed_at = $4 WHERE id = $1`,
		d.ID, string(d.Status), d.CreditedAmount, d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update deposit: %w", err)
	}
	return nil
}

// ---- ваучеры ----

const voucherColumns = `id, code, description, owner_id, discount_percent::text, discount_amount, min_order_amount,
	usage_limit, used_count, is_active, expiration_date, deleted_by_user, created_at`

func scanVoucher(row pgx.Row) (*model.Voucher, error) {
	var (
		v       model.Voucher
		percent string
	)
	err := row.Scan(&v.ID, &v.Code, &v.Description, &v.OwnerID, &percent, &v.DiscountAmount,
		&v.MinOrderAmount, &v.UsageLimit, &v.UsedCount, &v.IsActive, &v.ExpirationDate,
		&v.DeletedByUser, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.DiscountPercent, err = decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("parse discount percent %q: %w", percent, err)
	}
	return &v, nil
}

func (q *queries) selectVouchers(ctx context.Context, query string, args ...any) ([]model.Voucher, error) {
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select vouchers: %w", err)
	}
	defer rows.Close()

	var res []model.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		res = append(res, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetVoucher возвращает ваучер по идентификатору.
func (q *queries) GetVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	v, err := scanVoucher(q.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("voucher", id)
		}
		return nil, fmt.Errorf("get voucher: %w", err)
	}
	return v, nil
}

// ListVouchersForUser возвращает личные нескрытые ваучеры пользователя и все общие.
func (q *queries) ListVouchersForUser(ctx context.Context, userID int64) ([]model.Voucher, error) {
	return q.selectVouchers(ctx,
		`SELECT `+voucherColumns+` FROM vouchers
		 WHERE (owner_id = $1 AND NOT deleted_by_user) OR owner_id IS NULL
		 ORDER BY expiration_date, id`,
		userID,
	)
}

// ListVouchers возвращает все ваучеры.
func (q *queries) ListVouchers(ctx context.Context) ([]model.Voucher, error) {
	return q.selectVouchers(ctx, `SELECT `+voucherColumns+` FROM vouchers ORDER BY id`)
}

// InsertVoucher сохраняет ваучер. Возвращает false, если код уже занят.
func (q *queries) InsertVoucher(ctx context.Context, v *model.Voucher) (bool, error) {
	err := q.db.QueryRow(ctx,
		`INSERT INTO vouchers (code, description, owner_id, discount_percent, discount_amount, min_order_amount,
		                       usage_limit, used_count, is_active, expiration_date, deleted_by_user, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (code) DO NOTHING
		 RETURNING id`,
		v.Code, v.Description, v.OwnerID, v.DiscountPercent.String(), v.DiscountAmount, v.MinOrderAmount,
		v.UsageLimit, v.UsedCount, v.IsActive, v.ExpirationDate, v.DeletedByUser, v.CreatedAt,
	).Scan(&v.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("insert voucher: %w", err)
	}
	return true, nil
}

// LockVoucherByCode блокирует ваучер, доступный пользователю по коду.
func (q *queries) LockVoucherByCode(ctx context.Context, code string, userID int64) (*model.Voucher, error) {
	v, err := scanVoucher(q.db.QueryRow(ctx,
		`SELECT `+voucherColumns+` FROM vouchers
		 WHERE code = $1 AND (owner_id = $2 OR owner_id IS NULL)
		 FOR UPDATE`,
		code, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NewVoucherError(code, apperr.VoucherNotFound)
		}
		return nil, fmt.Errorf("lock voucher: %w", err)
	}
	return v, nil
}

// LockVoucher блокирует ваучер по идентификатору.
func (q *queries) LockVoucher(ctx context.Context, id int64) (*model.Voucher, error) {
	v, err := scanVoucher(q.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("voucher", id)
		}
		return nil, fmt.Errorf("lock voucher: %w", err)
	}
	return v, nil
}

// UpdateVoucher сохраняет изменяемые поля ваучера.
func (q *queries) UpdateVoucher(ctx context.Context, v *model.Voucher) error {
	_, err := q.db.Exec(ctx,
		`UPDATE vouchers
		 SET description = $2, usage_limit = $3, used_count = $4, is_active = $5,
		     expiration_date = $6, deleted_by_user = $7
		 WHERE id = $1`,
		v.ID, v.Description, v.UsageLimit, v.UsedCount, v.IsActive, v.ExpirationDate, v.DeletedByUser,
	)
	if err != nil {
		return fmt.Errorf("update voucher: %w", err)
	}
	return nil
}

// ---- товары и магазины ----

const productColumns = `id, seller_id, shop_id, name, price, quantity, sold, status`

func scanProduct(row pgx.Row) (*model.Product, error) {
	var (
		p      model.Product
		status string
	)
	if err := row.Scan(&p.ID, &p.SellerID, &p.ShopID, &p.Name, &p.Price, &p.Quantity, &p.Sold, &status); err != nil {
		return nil, err
	}
	p.Status = model.ProductStatus(status)
	return &p, nil
}

// GetProduct возвращает товар по идентификатору.
func (q *queries) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("product", id)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// LockProduct блокирует строку товара до конца транзакции.
func (q *queries) LockProduct(ctx context.Context, id int64) (*model.Product, error) {
	p, err := scanProduct(q.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("product", id)
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return p, nil
}

// UpdateProduct сохраняет остаток, продажи и статус товара.
func (q *queries) UpdateProduct(ctx context.Context, p *model.Product) error {
	_, err := q.db.Exec(ctx,
		`UPDATE products SET quantity = $2, sold = $3, status = $4 WHERE id = $1`,
		p.ID, p.Quantity, p.Sold, string(p.Status),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return fmt.Errorf("%w: product %d", apperr.ErrInsufficientStock, p.ID)
		}
		return fmt.Errorf("update product: %w", err)
	}
	return nil
}

// GetShop возвращает магазин по идентификатору.
func (q *queries) GetShop(ctx context.Context, id int64) (*model.Shop, error) {
	var s model.Shop
	err := q.db.QueryRow(ctx, `SELECT id, owner_id, total_sold FROM shops WHERE id = $1`, id).
		Scan(&s.ID, &s.OwnerID, &s.TotalSold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("shop", id)
		}
		return nil, fmt.Errorf("get shop: %w", err)
	}
	return &s, nil
}

// RefreshShopSold пересчитывает агрегат продаж магазина по его товарам.
func (q *queries) RefreshShopSold(ctx context.Context, shopID int64) error {
	_, err := q.db.Exec(ctx,
		`UPDATE shops SET total_sold = (SELECT COALESCE(SUM(sold), 0) FROM products WHERE shop_id = $1)
		 WHERE id = $1`,
		shopID,
	)
	if err != nil {
		return fmt.Errorf("refresh shop sold: %w", err)
	}
	return nil
}

// ---- заказы ----

const orderColumns = `id, code, buyer_id, seller_id, shop_id, total_amount, discount_amount, final_amount,
	voucher_code, status, shipping_address, note, order_date, completed_date`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		status string
	)
	err := row.Scan(&o.ID, &o.Code, &o.BuyerID, &o.SellerID, &o.ShopID, &o.TotalAmount, &o.DiscountAmount,
		&o.FinalAmount, &o.VoucherCode, &status, &o.ShippingAddress, &o.Note, &o.OrderDate, &o.CompletedDate)
	if err != nil {
		return nil, err
	}
	o.Status = model.OrderStatus(status)
	return &o, nil
}

func (q *queries) loadItems(ctx context.Context, orders []*model.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*model.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	rows, err := q.db.Query(ctx,
		`SELECT order_id, product_id, quantity, price_at_purchase
		 FROM order_items WHERE order_id = ANY($1) ORDER BY id`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID int64
			item    model.OrderItem
		)
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &item.PriceAtPurchase); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

func (q *queries) getOrder(ctx context.Context, id int64, lock bool) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}

	o, err := scanOrder(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := q.loadItems(ctx, []*model.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrder возвращает заказ вместе с позициями.
func (q *queries) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	return q.getOrder(ctx, id, false)
}

// LockOrder блокирует строку заказа до конца транзакции.
func (q *queries) LockOrder(ctx context.Context, id int64) (*model.Order, error) {
	return q.getOrder(ctx, id, true)
}

// GetOrderByCode возвращает заказ по его номеру.
func (q *queries) GetOrderByCode(ctx context.Context, code string) (*model.Order, error) {
	o, err := scanOrder(q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("order", code)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := q.loadItems(ctx, []*model.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrders возвращает заказы, в которых пользователь выступает в роли party.
// PartyNone выбирает заказы, где пользователь покупатель или продавец.
func (q *queries) ListOrders(ctx context.Context, userID int64, party model.Party) ([]model.Order, error) {
	var where string
	switch party {
	case model.PartyBuyer:
		where = `buyer_id = $1`
	case model.PartySeller:
		where = `seller_id = $1`
	case model.PartyNone:
		where = `(buyer_id = $1 OR seller_id = $1)`
	default:
		return nil, apperr.Validation("unknown party %q", party)
	}
	return q.selectOrders(ctx, ` WHERE `+where, userID)
}

// ListAllOrders возвращает все заказы, новые первыми.
func (q *queries) ListAllOrders(ctx context.Context) ([]model.Order, error) {
	return q.selectOrders(ctx, ``)
}

func (q *queries) selectOrders(ctx context.Context, where string, args ...any) ([]model.Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders`+where+` ORDER BY order_date DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var ptrs []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		ptrs = append(ptrs, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if err := q.loadItems(ctx, ptrs); err != nil {
		return nil, err
	}

	res := make([]model.Order, 0, len(ptrs))
	for _, o := range ptrs {
		res = append(res, *o)
	}
	return res, nil
}

// InsertOrder сохраняет заказ с позициями и заполняет его идентификатор.
func (q *queries) InsertOrder(ctx context.Context, o *model.Order) error {
	err := q.db.QueryRow(ctx,
		`INSERT INTO orders (code, buyer_id, seller_id, shop_id, total_amount, discount_amount, final_amount,
		                     voucher_code, status, shipping_address, note, order_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		o.Code, o.BuyerID, o.SellerID, o.ShopID, o.TotalAmount, o.DiscountAmount, o.FinalAmount,
		o.VoucherCode, string(o.Status), o.ShippingAddress, o.Note, o.OrderDate,
	).Scan(&o.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: order %s", apperr.ErrConflict, o.Code)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err := q.db.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase) VALUES ($1, $2, $3, $4)`,
			o.ID, item.ProductID, item.Quantity, item.PriceAtPurchase,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// UpdateOrder сохраняет статус заказа и дату завершения.
func (q *queries) UpdateOrder(ctx context.Context, o *model.Order) error {
	_, err := q.db.Exec(ctx,
		`UPDATE orders SET status = $2, completed_date = $3 WHERE id = $1`,
		o.ID, string(o.Status), o.CompletedDate,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	return nil
}

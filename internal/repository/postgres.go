// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mmeshcher/laundry-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrAddressNotFound возвращается, если адрес не найден или принадлежит другому пользователю.
	ErrAddressNotFound = errors.New("address not found")
	// ErrOrderNotFound возвращается, если заказ не найден или принадлежит другому пользователю.
	ErrOrderNotFound = errors.New("order not found")
	// ErrIllegalTransition возвращается, если текущий статус заказа не допускает запрошенный переход.
	// Условное обновление в БД — авторитетная проверка: устаревший снимок на
	// клиенте приводит к этой ошибке, а не к повторному применению перехода.
	ErrIllegalTransition = errors.New("illegal status transition")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

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

	r := &PostgresRepository{pool: pool}

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

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *PostgresRepository) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (login, password_hash) VALUES ($1, $2) RETURNING id`,
		login, passwordHash,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%w: %s", ErrUserExists, login)
		}
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// GetUserByLogin возвращает пользователя по логину.
func (r *PostgresRepository) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, login, password_hash, created_at FROM users WHERE login = $1`,
		login,
	)

	var u model.User
	err := row.Scan(&u.ID, &u.Login, &u.PasswordHash, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &u, nil
}

// ListOutlets возвращает каталог точек обслуживания. Координаты (0, 0) или
// NULL означают, что местоположение точки не задано.
func (r *PostgresRepository) ListOutlets(ctx context.Context) ([]model.Outlet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, address, lat, lon FROM outlets ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("select outlets: %w", err)
	}
	defer rows.Close()

	var outlets []model.Outlet
	for rows.Next() {
		var (
			o        model.Outlet
			lat, lon *float64
		)
		if err := rows.Scan(&o.ID, &o.Name, &o.Address, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan outlet: %w", err)
		}

		if lat != nil && lon != nil && (*lat != 0 || *lon != 0) {
			o.Location = &model.GeoPoint{Lat: *lat, Lon: *lon}
		}

		outlets = append(outlets, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return outlets, nil
}

// CreateAddress сохраняет адрес клиента и возвращает его идентификатор.
func (r *PostgresRepository) CreateAddress(ctx context.Context, a model.CustomerAddress) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customer_addresses (user_id, street, province, regency, district, village, lat, lon)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		a.UserID, a.Street, a.Province, a.Regency, a.District, a.Village, a.Location.Lat, a.Location.Lon,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create address: %w", err)
	}
	return id, nil
}

// GetAddressByID возвращает адрес клиента по идентификатору.
func (r *PostgresRepository) GetAddressByID(ctx context.Context, id, userID int64) (*model.CustomerAddress, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, user_id, street, province, regency, district, village, lat, lon
		 FROM customer_addresses
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	)

	var a model.CustomerAddress
	err := row.Scan(&a.ID, &a.UserID, &a.Street, &a.Province, &a.Regency, &a.District, &a.Village,
		&a.Location.Lat, &a.Location.Lon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return &a, nil
}

// GetAddressesByUser возвращает список адресов клиента.
func (r *PostgresRepository) GetAddressesByUser(ctx context.Context, userID int64) ([]model.CustomerAddress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, street, province, regency, district, village, lat, lon
		 FROM customer_addresses
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select addresses: %w", err)
	}
	defer rows.Close()

	var res []model.CustomerAddress
	for rows.Next() {
		var a model.CustomerAddress
		if err := rows.Scan(&a.ID, &a.UserID, &a.Street, &a.Province, &a.Regency, &a.District, &a.Village,
			&a.Location.Lat, &a.Location.Lon); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		res = append(res, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CreateOrder создаёт заказ в начальном статусе и возвращает его снимок.
func (r *PostgresRepository) CreateOrder(ctx context.Context, userID, addressID, outletID int64) (*model.Order, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO orders (user_id, outlet_id, address_id, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		userID, outletID, addressID, string(model.OrderStatusWaitingPickupDriver),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return r.GetOrderByID(ctx, id, userID)
}

// GetOrderByID возвращает заказ клиента вместе с позициями.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID, userID int64) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT o.id, o.user_id, o.status, o.is_paid, o.outlet_id, ot.name, o.address_id,
		        o.cancel_reason, o.created_at, o.updated_at
		 FROM orders o
		 JOIN outlets ot ON ot.id = o.outlet_id
		 WHERE o.id = $1 AND o.user_id = $2`,
		orderID, userID,
	)

	var o model.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &status, &o.IsPaid, &o.OutletID, &o.OutletName, &o.AddressID,
		&o.CancelReason, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	items, err := r.getOrderItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items

	return &o, nil
}

func (r *PostgresRepository) getOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, quantity FROM order_items WHERE order_id = $1 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.Name, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// GetOrdersByUser возвращает список заказов клиента от новых к старым.
func (r *PostgresRepository) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.id, o.user_id, o.status, o.is_paid, o.outlet_id, ot.name, o.address_id,
		        o.cancel_reason, o.created_at, o.updated_at
		 FROM orders o
		 JOIN outlets ot ON ot.id = o.outlet_id
		 WHERE o.user_id = $1
		 ORDER BY o.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &status, &o.IsPaid, &o.OutletID, &o.OutletName, &o.AddressID,
			&o.CancelReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		items, err := r.getOrderItems(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}

	return orders, nil
}

// UpdateOrderStatusGuarded переводит заказ в статус to, только если текущий
// статус входит во множество from. Непустой reason записывается как причина
// отмены. Возвращает ErrIllegalTransition, если переход не разрешён.
func (r *PostgresRepository) UpdateOrderStatusGuarded(ctx context.Context, orderID, userID int64, from []model.OrderStatus, to model.OrderStatus, reason string) error {
	fromStrs := make([]string, 0, len(from))
	for _, s := range from {
		fromStrs = append(fromStrs, string(s))
	}

	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET status = $3,
		     cancel_reason = COALESCE(NULLIF($4, ''), cancel_reason),
		     updated_at = now()
		 WHERE id = $1 AND user_id = $2 AND status = ANY($5)`,
		orderID, userID, string(to), reason, fromStrs,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	// Отличаем отсутствующий заказ от недопустимого перехода.
	var exists bool
	err = r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1 AND user_id = $2)`,
		orderID, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}

	if !exists {
		return ErrOrderNotFound
	}

	return ErrIllegalTransition
}

// ReplaceOrderItems заменяет позиции заказа после приёмки белья в точке.
func (r *PostgresRepository) ReplaceOrderItems(ctx context.Context, orderID int64, items []model.OrderItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`,
		orderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return ErrOrderNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID); err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx,
			`INSERT INTO order_items (order_id, name, quantity) VALUES ($1, $2, $3)`,
			orderID, it.Name, it.Quantity,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// UnpaidOrder описывает заказ, ожидающий подтверждения оплаты.
type UnpaidOrder struct {
	ID     int64
	UserID int64
	Status model.OrderStatus
}

// GetUnpaidOrders возвращает неоплаченные нетерминальные заказы для опроса
// платёжной системы.
func (r *PostgresRepository) GetUnpaidOrders(ctx context.Context, limit int) ([]UnpaidOrder, error) {
	var res []UnpaidOrder

	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT id, user_id, status
			 FROM orders
			 WHERE is_paid = FALSE AND status NOT IN ($1, $2, $3)
			 ORDER BY created_at
			 LIMIT $4`,
			string(model.OrderStatusCompleted),
			string(model.OrderStatusCancelledByCustomer),
			string(model.OrderStatusCancelledByOutlet),
			limit,
		)
		if err != nil {
			return fmt.Errorf("select unpaid orders: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var o UnpaidOrder
			var status string
			if err := rows.Scan(&o.ID, &o.UserID, &status); err != nil {
				return fmt.Errorf("scan unpaid order: %w", err)
			}
			o.Status = model.OrderStatus(status)
			res = append(res, o)
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// MarkOrderPaid отмечает заказ оплаченным. Заказ в статусе AWAITING_PAYMENT
// одновременно продвигается к доставке.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, orderID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders
		 SET is_paid = TRUE,
		     status = CASE WHEN status = $2 THEN $3 ELSE status END,
		     updated_at = now()
		 WHERE id = $1`,
		orderID,
		string(model.OrderStatusAwaitingPayment),
		string(model.OrderStatusReadyForDelivery),
	)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return nil
}

// Package repository содержит реализацию доступа к данным в PostgreSQL.
//
// Сервис только читает витрину заказов: все операции пакета — агрегирующие
// выборки, запись принадлежит внешнему контуру приёма заказов.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// UnknownDistrict — метка для отсутствующего района в адресе покупателя.
// Нормализация выполняется на уровне SQL, чтобы группировки ниже по потоку
// никогда не видели NULL.
const UnknownDistrict = "Unknown"

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

// DemandRow — одна позиция заказа с привязкой к району и товару.
type DemandRow struct {
	CreatedAt   time.Time
	District    string
	ProductName string
	Quantity    int
}

// DemandRows возвращает позиции заказов начиная с указанного момента
// с районом покупателя и названием товара. Пустой район заменяется меткой Unknown.
func (r *PostgresRepository) DemandRows(ctx context.Context, since time.Time) ([]DemandRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT o.created_at,
		        COALESCE(NULLIF(ua.district, ''), $2) AS district,
		        p.name,
		        oi.quantity
		 FROM orders o
		 JOIN order_items oi ON oi.order_id = o.id
		 JOIN products p ON p.id = oi.product_id
		 JOIN users u ON u.id = o.user_id
		 JOIN user_addresses ua ON ua.user_id = u.id
		 WHERE o.created_at >= $1`,
		since, UnknownDistrict,
	)
	if err != nil {
		return nil, fmt.Errorf("select demand rows: %w", err)
	}
	defer rows.Close()

	var res []DemandRow
	for rows.Next() {
		var d DemandRow
		if err := rows.Scan(&d.CreatedAt, &d.District, &d.ProductName, &d.Quantity); err != nil {
			return nil, fmt.Errorf("scan demand row: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ProductSalesRow — суммарные продажи товара за окно.
type ProductSalesRow struct {
	ProductID   int64
	ProductName string
	TotalSold   int
}

// TopProductSales возвращает товары с наибольшим числом проданных единиц
// начиная с указанного момента.
func (r *PostgresRepository) TopProductSales(ctx context.Context, since time.Time, limit int) ([]ProductSalesRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, SUM(oi.quantity) AS total_sold
		 FROM products p
		 JOIN order_items oi ON oi.product_id = p.id
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.created_at >= $1
		 GROUP BY p.id, p.name
		 ORDER BY total_sold DESC
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top product sales: %w", err)
	}
	defer rows.Close()

	var res []ProductSalesRow
	for rows.Next() {
		var p ProductSalesRow
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.TotalSold); err != nil {
			return nil, fmt.Errorf("scan product sales: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ProductStockRow — товар с текущим остатком и продажами за окно.
type ProductStockRow struct {
	ProductID   int64
	ProductName string
	Stock       int
	TotalSold   int
}

// ProductSales возвращает все товары с остатком и суммой продаж начиная
// с указанного момента. Товары без продаж получают ноль.
func (r *PostgresRepository) ProductSales(ctx context.Context, since time.Time) ([]ProductStockRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.stock,
		        COALESCE(SUM(oi.quantity) FILTER (WHERE o.created_at >= $1), 0) AS total_sold
		 FROM products p
		 LEFT JOIN order_items oi ON oi.product_id = p.id
		 LEFT JOIN orders o ON o.id = oi.order_id
		 GROUP BY p.id, p.name, p.stock
		 ORDER BY p.id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("select product sales: %w", err)
	}
	defer rows.Close()

	var res []ProductStockRow
	for rows.Next() {
		var p ProductStockRow
		if err := rows.Scan(&p.ProductID, &p.ProductName, &p.Stock, &p.TotalSold); err != nil {
			return nil, fmt.Errorf("scan product stock: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeadStockRow — товар без продаж за контрольное окно.
type DeadStockRow struct {
	ProductID   int64
	ProductName string
	Stock       int
}

// DeadStock возвращает товары с положительным остатком, не продававшиеся
// начиная с указанного момента. Результат упорядочен по идентификатору
// и ограничен limit записями.
func (r *PostgresRepository) DeadStock(ctx context.Context, since time.Time, limit int) ([]DeadStockRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.name, p.stock
		 FROM products p
		 WHERE p.stock > 0
		   AND p.id NOT IN (
		       SELECT DISTINCT oi.product_id
		       FROM order_items oi
		       JOIN orders o ON o.id = oi.order_id
		       WHERE o.created_at >= $1
		   )
		 ORDER BY p.id
		 LIMIT $2`,
		since, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select dead stock: %w", err)
	}
	defer rows.Close()

	var res []DeadStockRow
	for rows.Next() {
		var d DeadStockRow
		if err := rows.Scan(&d.ProductID, &d.ProductName, &d.Stock); err != nil {
			return nil, fmt.Errorf("scan dead stock: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ActiveUserIDs возвращает идентификаторы пользователей, сделавших хотя бы
// один заказ начиная с указанного момента.
func (r *PostgresRepository) ActiveUserIDs(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM orders WHERE created_at >= $1`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("select active users: %w", err)
	}
	defer rows.Close()

	var res []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		res = append(res, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// LapsedUserRow — ушедший лояльный покупатель и число его заказов за всё время.
type LapsedUserRow struct {
	Name       string
	OrderCount int
}

// LapsedLoyalUsers возвращает пользователей, не входящих в excludeIDs,
// с не менее чем minOrders заказами за всё время.
func (r *PostgresRepository) LapsedLoyalUsers(ctx context.Context, excludeIDs []int64, minOrders, limit int) ([]LapsedUserRow, error) {
	if excludeIDs == nil {
		excludeIDs = []int64{}
	}

	rows, err := r.pool.Query(ctx,
		`SELECT u.name, COUNT(o.id) AS order_count
		 FROM users u
		 JOIN orders o ON o.user_id = u.id
		 WHERE NOT (u.id = ANY($1))
		 GROUP BY u.id, u.name
		 HAVING COUNT(o.id) >= $2
		 ORDER BY order_count DESC
		 LIMIT $3`,
		excludeIDs, minOrders, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select lapsed users: %w", err)
	}
	defer rows.Close()

	var res []LapsedUserRow
	for rows.Next() {
		var u LapsedUserRow
		if err := rows.Scan(&u.Name, &u.OrderCount); err != nil {
			return nil, fmt.Errorf("scan lapsed user: %w", err)
		}
		res = append(res, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// CountOrders возвращает общее число заказов.
func (r *PostgresRepository) CountOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	})
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return count, nil
}

// SumRevenueCents возвращает суммарную выручку по всем заказам в копейках.
func (r *PostgresRepository) SumRevenueCents(ctx context.Context) (int64, error) {
	var total int64
	err := r.withRetry(ctx, func() error {
		return r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(total_cents), 0) FROM orders`).Scan(&total)
	})
	if err != nil {
		return 0, fmt.Errorf("sum revenue: %w", err)
	}
	return total, nil
}

// DistrictStatRow — агрегат заказов и выручки по району.
type DistrictStatRow struct {
	District     string
	OrderCount   int64
	RevenueCents int64
}

// TopDistricts возвращает районы с наибольшей выручкой.
func (r *PostgresRepository) TopDistricts(ctx context.Context, limit int) ([]DistrictStatRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT COALESCE(NULLIF(ua.district, ''), $2) AS district,
		        COUNT(o.id) AS order_count,
		        COALESCE(SUM(o.total_cents), 0) AS revenue
		 FROM user_addresses ua
		 JOIN users u ON u.id = ua.user_id
		 JOIN orders o ON o.user_id = u.id
		 GROUP BY 1
		 ORDER BY revenue DESC
		 LIMIT $1`,
		limit, UnknownDistrict,
	)
	if err != nil {
		return nil, fmt.Errorf("select top districts: %w", err)
	}
	defer rows.Close()

	var res []DistrictStatRow
	for rows.Next() {
		var d DistrictStatRow
		if err := rows.Scan(&d.District, &d.OrderCount, &d.RevenueCents); err != nil {
			return nil, fmt.Errorf("scan district stat: %w", err)
		}
		res = append(res, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ProductStatRow — агрегат проданных единиц по товару за всё время.
type ProductStatRow struct {
	Name         string
	QuantitySold int64
}

// TopProducts возвращает товары с наибольшим числом проданных единиц за всё время.
func (r *PostgresRepository) TopProducts(ctx context.Context, limit int) ([]ProductStatRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT p.name, SUM(oi.quantity) AS qty_sold
		 FROM products p
		 JOIN order_items oi ON oi.product_id = p.id
		 GROUP BY p.id, p.name
		 ORDER BY qty_sold DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select top products: %w", err)
	}
	defer rows.Close()

	var res []ProductStatRow
	for rows.Next() {
		var p ProductStatRow
		if err := rows.Scan(&p.Name, &p.QuantitySold); err != nil {
			return nil, fmt.Errorf("scan product stat: %w", err)
		}
		res = append(res, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

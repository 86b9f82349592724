// Package sqlite implements order persistence on an embedded SQLite file.
// It serves local development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"

	// Pure-Go driver, registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/xenking/food-delivery/db"
	"github.com/xenking/food-delivery/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const orderColumns = `id, user_id, user_name, branch_id, customer_phone, delivery_address,
	note, subtotal, coupon_code, discount_amount, total_price, status, created_at`

// OrderRepository implements order.Repository on SQLite.
type OrderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*OrderRepository, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	// One connection: SQLite has a single writer, and this also serializes
	// status transitions.
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, db.SQLiteSchema); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	return &OrderRepository{db: conn, now: time.Now}, nil
}

// Close releases the database.
func (r *OrderRepository) Close() error {
	return r.db.Close()
}

// Ping checks that the database is reachable.
func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *OrderRepository) execTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "rollback: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Create inserts the order and its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if len(o.Lines) == 0 {
		return errors.New("order has no lines")
	}
	if o.Status == "" {
		o.Status = order.StatusPendingPayment
	}
	createdAt := r.now().UTC()

	return r.execTx(ctx, func(tx *sql.Tx) error {
		const insertOrder = `
			INSERT INTO orders (user_id, user_name, branch_id, customer_phone, delivery_address, note,
				subtotal, coupon_code, discount_amount, total_price, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		res, err := tx.ExecContext(ctx, insertOrder,
			nullableID(o.UserID), o.CustomerName, o.BranchID, o.CustomerPhone, o.DeliveryAddress, o.Note,
			o.Subtotal.String(), o.CouponCode, o.DiscountAmount.String(), o.Total.String(),
			string(o.Status), createdAt.Format(timeLayout),
		)
		if err != nil {
			return errors.Wrap(err, "insert order")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return errors.Wrap(err, "last insert id")
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO order_items (order_id, position, food_id, food_name, price, quantity, image_url)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return errors.Wrap(err, "prepare line insert")
		}
		defer func() { _ = stmt.Close() }()

		for i, l := range o.Lines {
			if _, err := stmt.ExecContext(ctx, id, i, l.FoodID, l.FoodName, l.UnitPrice.String(), l.Quantity, l.ImageURL); err != nil {
				return errors.Wrapf(err, "insert line %d", i)
			}
		}

		o.ID, o.CreatedAt = id, createdAt
		return nil
	})
}

// GetByID returns order.ErrNotFound when no order has the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return getOrder(ctx, r.db, id)
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	const q = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE (? = 0 OR branch_id = ?)
		  AND (? = 0 OR user_id = ?)
		ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, q, f.BranchID, f.BranchID, f.UserID, f.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders := []order.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "scan order")
		}
		orders = append(orders, o)
	}
	// The only connection must be released before the lines query.
	if err := rows.Close(); err != nil {
		return nil, errors.Wrap(err, "close rows")
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]any, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	linesQuery := `
		SELECT order_id, food_id, food_name, price, quantity, image_url
		FROM order_items
		WHERE order_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)
		ORDER BY order_id, position`

	lineRows, err := r.db.QueryContext(ctx, linesQuery, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "query lines")
	}
	defer func() { _ = lineRows.Close() }()
	for lineRows.Next() {
		var (
			orderID int64
			l       order.Line
		)
		if err := lineRows.Scan(&orderID, &l.FoodID, &l.FoodName, &l.UnitPrice, &l.Quantity, &l.ImageURL); err != nil {
			return nil, errors.Wrap(err, "scan line")
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate lines")
	}
	return orders, nil
}

// UpdateStatus reads the current status, lets fn decide the next one and
// writes it in one transaction.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	fn func(current order.Status) (order.Status, error),
) (*order.Order, error) {
	var result *order.Order
	err := r.execTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM orders WHERE id = ?`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(order.ErrNotFound, "id %d", id)
		}
		if err != nil {
			return errors.Wrap(err, "read status")
		}

		next, err := fn(order.Status(current))
		if err != nil {
			return err
		}
		if string(next) != current {
			if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(next), id); err != nil {
				return errors.Wrap(err, "update status")
			}
		}

		result, err = getOrder(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getOrder(ctx context.Context, q querier, id int64) (*order.Order, error) {
	o, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT food_id, food_name, price, quantity, image_url
		FROM order_items
		WHERE order_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query lines for order %d", id)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.FoodID, &l.FoodName, &l.UnitPrice, &l.Quantity, &l.ImageURL); err != nil {
			return nil, errors.Wrap(err, "scan line")
		}
		o.Lines = append(o.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate lines")
	}
	return &o, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (order.Order, error) {
	var (
		o         order.Order
		userID    sql.NullInt64
		status    string
		createdAt string
	)
	if err := row.Scan(
		&o.ID, &userID, &o.CustomerName, &o.BranchID, &o.CustomerPhone, &o.DeliveryAddress,
		&o.Note, &o.Subtotal, &o.CouponCode, &o.DiscountAmount, &o.Total, &status, &createdAt,
	); err != nil {
		return o, err
	}
	if userID.Valid {
		v := userID.Int64
		o.UserID = &v
	}
	o.Status = order.Status(status)

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return o, errors.Wrapf(err, "parse created_at %q", createdAt)
	}
	o.CreatedAt = t
	return o, nil
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}

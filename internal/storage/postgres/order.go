package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/food-delivery/internal/domain/order"
)

var _ order.Repository = (*OrderRepository)(nil)

const orderColumns = `o.id, o.user_id, o.user_name, o.branch_id, o.customer_phone, o.delivery_address,
	o.note, o.subtotal, o.coupon_code, o.discount_amount, o.total_price, o.status, o.created_at`

const lineColumns = `i.food_id, i.food_name, i.price, i.quantity, i.image_url`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Ping checks database connectivity.
func (r *OrderRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create inserts the order row and all of its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if len(o.Lines) == 0 {
		return errors.New("order has no lines")
	}
	if o.Status == "" {
		o.Status = order.StatusPendingPayment
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		const insertOrder = `
			INSERT INTO orders (user_id, user_name, branch_id, customer_phone, delivery_address, note,
				subtotal, coupon_code, discount_amount, total_price, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, created_at`

		if err := tx.QueryRow(ctx, insertOrder,
			o.UserID, o.CustomerName, o.BranchID, o.CustomerPhone, o.DeliveryAddress, o.Note,
			o.Subtotal, o.CouponCode, o.DiscountAmount, o.Total, string(o.Status),
		).Scan(&o.ID, &o.CreatedAt); err != nil {
			return errors.Wrap(err, "insert order")
		}

		rows := make([][]any, len(o.Lines))
		for i, l := range o.Lines {
			rows[i] = []any{o.ID, i, l.FoodID, l.FoodName, l.UnitPrice, l.Quantity, l.ImageURL}
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"order_items"},
			[]string{"order_id", "position", "food_id", "food_name", "price", "quantity", "image_url"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return errors.Wrapf(err, "insert lines for order %d", o.ID)
		}
		return nil
	})
}

// GetByID returns order.ErrNotFound when no order has the given id.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	return getOrder(ctx, r.pool, id)
}

// List returns orders matching the filter, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter) ([]order.Order, error) {
	const q = `
		SELECT ` + orderColumns + `
		FROM orders o
		WHERE ($1::bigint = 0 OR o.branch_id = $1)
		  AND ($2::bigint = 0 OR o.user_id = $2)
		ORDER BY o.created_at DESC, o.id DESC`

	rows, err := r.pool.Query(ctx, q, f.BranchID, f.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "query orders")
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}
	if len(orders) == 0 {
		return []order.Order{}, nil
	}

	ids := make([]int64, len(orders))
	byID := make(map[int64]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	const linesQuery = `
		SELECT i.order_id, ` + lineColumns + `
		FROM order_items i
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.position`

	lineRows, err := r.pool.Query(ctx, linesQuery, ids)
	if err != nil {
		return nil, errors.Wrap(err, "query lines")
	}
	defer lineRows.Close()
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

// UpdateStatus locks the order row, lets fn decide the next status and
// writes it in the same transaction.
func (r *OrderRepository) UpdateStatus(
	ctx context.Context,
	id int64,
	fn func(current order.Status) (order.Status, error),
) (*order.Order, error) {
	var result *order.Order
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(order.ErrNotFound, "id %d", id)
		}
		if err != nil {
			return errors.Wrap(err, "lock order")
		}

		next, err := fn(order.Status(current))
		if err != nil {
			return err
		}
		if string(next) != current {
			if _, err := tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, string(next)); err != nil {
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

// Stream calls fn for every order matching the filter in id order without
// loading the whole result set. Returning an error from fn stops iteration.
func (r *OrderRepository) Stream(ctx context.Context, f order.ListFilter, fn func(*order.Order) error) error {
	const q = `
		SELECT ` + orderColumns + `, ` + lineColumns + `
		FROM orders o
		JOIN order_items i ON i.order_id = o.id
		WHERE ($1::bigint = 0 OR o.branch_id = $1)
		  AND ($2::bigint = 0 OR o.user_id = $2)
		ORDER BY o.id, i.position`

	rows, err := r.pool.Query(ctx, q, f.BranchID, f.UserID)
	if err != nil {
		return errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var current *order.Order
	for rows.Next() {
		var (
			o order.Order
			l order.Line
		)
		if err := scanOrderLine(rows, &o, &l); err != nil {
			return errors.Wrap(err, "scan order")
		}
		if current != nil && current.ID != o.ID {
			if err := fn(current); err != nil {
				return err
			}
			current = nil
		}
		if current == nil {
			current = &o
		}
		current.Lines = append(current.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterate orders")
	}
	if current != nil {
		return fn(current)
	}
	return nil
}

func getOrder(ctx context.Context, q querier, id int64) (*order.Order, error) {
	const orderQuery = `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = $1`

	o, err := scanOrder(q.QueryRow(ctx, orderQuery, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(order.ErrNotFound, "id %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}

	const linesQuery = `
		SELECT ` + lineColumns + `
		FROM order_items i
		WHERE i.order_id = $1
		ORDER BY i.position`

	rows, err := q.Query(ctx, linesQuery, id)
	if err != nil {
		return nil, errors.Wrapf(err, "query lines for order %d", id)
	}
	o.Lines, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Line, error) {
		var l order.Line
		err := row.Scan(&l.FoodID, &l.FoodName, &l.UnitPrice, &l.Quantity, &l.ImageURL)
		return l, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "scan lines for order %d", id)
	}
	return &o, nil
}

func scanOrder(row pgx.Row) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &o.CustomerName, &o.BranchID, &o.CustomerPhone, &o.DeliveryAddress,
		&o.Note, &o.Subtotal, &o.CouponCode, &o.DiscountAmount, &o.Total, &status, &o.CreatedAt,
	)
	o.Status = order.Status(status)
	return o, err
}

func scanOrderLine(row pgx.Row, o *order.Order, l *order.Line) error {
	var status string
	err := row.Scan(
		&o.ID, &o.UserID, &o.CustomerName, &o.BranchID, &o.CustomerPhone, &o.DeliveryAddress,
		&o.Note, &o.Subtotal, &o.CouponCode, &o.DiscountAmount, &o.Total, &status, &o.CreatedAt,
		&l.FoodID, &l.FoodName, &l.UnitPrice, &l.Quantity, &l.ImageURL,
	)
	o.Status = order.Status(status)
	return err
}

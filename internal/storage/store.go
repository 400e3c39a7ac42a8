package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/SirClappington/swapd/internal/domain"
)

var ErrNotFound = errors.New("order not found")

type Store struct{ db *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{db} }

// CreateOrder persists a new order in pending state and returns its id.
func (s *Store) CreateOrder(ctx context.Context, tokenIn, tokenOut string, amount float64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(ctx, `insert into orders(
id, token_in, token_out, amount, status
) values ($1,$2,$3,$4,$5)`,
		id, tokenIn, tokenOut, amount, string(domain.StatusPending),
	)
	if err != nil {
		return "", errors.Wrap(err, "insert order")
	}
	return id, nil
}

// UpdateOrder writes the fields of one state transition. Nil pointers in
// upd leave the corresponding columns untouched.
func (s *Store) UpdateOrder(ctx context.Context, id string, upd domain.OrderUpdate) error {
	set := []string{"status = $1", "updated_at = now()"}
	args := []any{string(upd.Status)}

	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if upd.Venue != nil {
		add("venue", *upd.Venue)
	}
	if upd.Price != nil {
		add("price", *upd.Price)
	}
	if upd.ExecutedPrice != nil {
		add("executed_price", *upd.ExecutedPrice)
	}
	if upd.TxRef != nil {
		add("tx_ref", *upd.TxRef)
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}
	args = append(args, id)

	tag, err := s.db.Exec(ctx,
		fmt.Sprintf(`update orders set %s where id = $%d`, strings.Join(set, ", "), len(args)),
		args...,
	)
	if err != nil {
		return errors.Wrap(err, "update order")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetOrder returns the persisted view of one order.
func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var o domain.Order
	err := s.db.QueryRow(ctx, `
select id, token_in, token_out, amount, status, venue, price, executed_price, tx_ref, error, created_at, updated_at
  from orders where id = $1`, id,
	).Scan(&o.ID, &o.TokenIn, &o.TokenOut, &o.Amount, &o.Status,
		&o.Venue, &o.Price, &o.ExecutedPrice, &o.TxRef, &o.Error, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Order{}, ErrNotFound
	}
	if err != nil {
		return domain.Order{}, errors.Wrap(err, "select order")
	}
	return o, nil
}

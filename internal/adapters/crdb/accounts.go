package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/travel-reservations/internal/domain"
)

func (r *Repository) Account(ctx context.Context, id string) (domain.Account, error) {
	var a domain.Account
	err := r.q(ctx).QueryRow(ctx, `SELECT id, email, name, customer_id FROM accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.Email, &a.Name, &a.CustomerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, errors.Wrapf(domain.ErrNotFound, "account %s", id)
	}
	return a, err
}

func (r *Repository) SaveAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q(ctx).Exec(ctx, `
		INSERT INTO accounts (id, email, name, customer_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, name = excluded.name, customer_id = excluded.customer_id
	`, a.ID, a.Email, a.Name, a.CustomerID)
	return err
}

package person

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/clinicore/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type personRepoPG struct{ pool *pgxpool.Pool }

func NewPersonRepoPG(pool *pgxpool.Pool) PersonRepository {
	return &personRepoPG{pool: pool}
}

func (r *personRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const personCols = `id, name, tax_id, email, phone, postal_code, address_number, created_at, updated_at`

func (r *personRepoPG) scanRow(row pgx.Row) (*Person, error) {
	var p Person
	err := row.Scan(&p.ID, &p.Name, &p.TaxID, &p.Email, &p.Phone, &p.PostalCode, &p.AddressNumber, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *personRepoPG) Create(ctx context.Context, p *Person) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO persons (id, name, tax_id, email, phone, postal_code, address_number)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.Name, p.TaxID, p.Email, p.Phone, p.PostalCode, p.AddressNumber)
	return err
}

func (r *personRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Person, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+personCols+` FROM persons WHERE id = $1`, id))
}

func (r *personRepoPG) GetByTaxID(ctx context.Context, taxID string) (*Person, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+personCols+` FROM persons WHERE tax_id = $1`, taxID))
}

func (r *personRepoPG) List(ctx context.Context, limit, offset int) ([]*Person, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM persons`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+personCols+` FROM persons ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Person
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *personRepoPG) Update(ctx context.Context, p *Person) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE persons SET name=$2, tax_id=$3, email=$4, phone=$5, postal_code=$6, address_number=$7, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.Name, p.TaxID, p.Email, p.Phone, p.PostalCode, p.AddressNumber)
	return err
}

package tenant

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

type companyRepoPG struct{ pool *pgxpool.Pool }

func NewCompanyRepoPG(pool *pgxpool.Pool) CompanyRepository {
	return &companyRepoPG{pool: pool}
}

func (r *companyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const companyCols = `id, name, cnpj, gateway_api_key, active, created_at, updated_at`

func (r *companyRepoPG) scanRow(row pgx.Row) (*Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.CNPJ, &c.GatewayAPIKey, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *companyRepoPG) Create(ctx context.Context, c *Company) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_companies (id, name, cnpj, gateway_api_key, active)
		VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.Name, c.CNPJ, c.GatewayAPIKey, c.Active)
	return err
}

func (r *companyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Company, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+companyCols+` FROM billing_companies WHERE id = $1`, id))
}

func (r *companyRepoPG) List(ctx context.Context, limit, offset int) ([]*Company, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_companies`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+companyCols+` FROM billing_companies ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Company
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *companyRepoPG) Update(ctx context.Context, c *Company) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE billing_companies SET name=$2, cnpj=$3, gateway_api_key=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Name, c.CNPJ, c.GatewayAPIKey, c.Active)
	return err
}

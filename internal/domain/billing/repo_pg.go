package billing

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

type invoiceRepoPG struct{ pool *pgxpool.Pool }

func NewInvoiceRepoPG(pool *pgxpool.Pool) InvoiceRepository {
	return &invoiceRepoPG{pool: pool}
}

func (r *invoiceRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const invoiceCols = `id, external_payment_id, tenant_billing_id, responsible_party_id, patient_id,
	total_value, description, due_date, status, consultation_ids, gateway_raw_payload,
	created_at, updated_at`

func (r *invoiceRepoPG) scanRow(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.ExternalPaymentID, &inv.TenantBillingID, &inv.ResponsiblePartyID, &inv.PatientID,
		&inv.TotalValue, &inv.Description, &inv.DueDate, &inv.Status, &inv.ConsultationIDs, &inv.GatewayRawPayload,
		&inv.CreatedAt, &inv.UpdatedAt)
	return &inv, err
}

func (r *invoiceRepoPG) Create(ctx context.Context, inv *Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_invoices (id, external_payment_id, tenant_billing_id, responsible_party_id, patient_id,
			total_value, description, due_date, status, consultation_ids, gateway_raw_payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID, inv.ExternalPaymentID, inv.TenantBillingID, inv.ResponsiblePartyID, inv.PatientID,
		inv.TotalValue, inv.Description, inv.DueDate, inv.Status, inv.ConsultationIDs, inv.GatewayRawPayload)
	return err
}

func (r *invoiceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM billing_invoices WHERE id = $1`, id))
}

func (r *invoiceRepoPG) GetByExternalPaymentID(ctx context.Context, paymentID string) (*Invoice, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx,
		`SELECT `+invoiceCols+` FROM billing_invoices WHERE external_payment_id = $1`, paymentID))
}

func (r *invoiceRepoPG) List(ctx context.Context, limit, offset int) ([]*Invoice, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing_invoices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+invoiceCols+` FROM billing_invoices ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Invoice
	for rows.Next() {
		inv, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, inv)
	}
	return items, total, rows.Err()
}

func (r *invoiceRepoPG) UpdateStatus(ctx context.Context, paymentID, status string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE billing_invoices SET status = $2, updated_at = NOW()
		WHERE external_payment_id = $1`, paymentID, status)
	return err
}

// chargeLockStaleness is how long a lock may be held before another run may
// take it over. Generously above the worst-case orchestration duration.
const chargeLockStaleness = "15 minutes"

type chargeLockRepoPG struct{ pool *pgxpool.Pool }

func NewChargeLockRepoPG(pool *pgxpool.Pool) ChargeLockRepository {
	return &chargeLockRepoPG{pool: pool}
}

func (r *chargeLockRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

func (r *chargeLockRepoPG) Acquire(ctx context.Context, key string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing_charge_locks (key, locked_at) VALUES ($1, NOW())
		ON CONFLICT (key) DO UPDATE SET locked_at = NOW()
		WHERE billing_charge_locks.locked_at < NOW() - INTERVAL '`+chargeLockStaleness+`'`, key)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *chargeLockRepoPG) Release(ctx context.Context, key string) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM billing_charge_locks WHERE key = $1`, key)
	return err
}

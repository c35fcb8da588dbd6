package consultation

import (
	"context"
	"fmt"

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

type consultationRepoPG struct{ pool *pgxpool.Pool }

func NewConsultationRepoPG(pool *pgxpool.Pool) ConsultationRepository {
	return &consultationRepoPG{pool: pool}
}

func (r *consultationRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consultationCols = `id, date, service_name, service_value,
	professional_id, professional_name, professional_title, professional_tax_id, professional_license,
	patient_id, tenant_billing_id, payment_reference, created_at, updated_at`

func (r *consultationRepoPG) scanRow(row pgx.Row) (*Consultation, error) {
	var c Consultation
	err := row.Scan(&c.ID, &c.Date, &c.ServiceName, &c.ServiceValue,
		&c.ProfessionalID, &c.ProfessionalName, &c.ProfessionalTitle, &c.ProfessionalTaxID, &c.ProfessionalLicense,
		&c.PatientID, &c.TenantBillingID, &c.PaymentReference, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *consultationRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Consultation, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consultationCols+` FROM consultations WHERE id = ANY($1) ORDER BY date`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *consultationRepoPG) SetPaymentReference(ctx context.Context, ids []uuid.UUID, paymentID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultations SET payment_reference = $2, updated_at = NOW()
		WHERE id = ANY($1) AND payment_reference IS NULL`, ids, paymentID)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("payment reference set on %d of %d consultations", tag.RowsAffected(), len(ids))
	}
	return nil
}

func (r *consultationRepoPG) ListUnbilled(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultations WHERE patient_id = $1 AND payment_reference IS NULL`,
		patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+consultationCols+` FROM consultations
		WHERE patient_id = $1 AND payment_reference IS NULL
		ORDER BY date LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

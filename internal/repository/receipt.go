package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/receipts-ocr-worker/constants"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/common"
	"github.com/joseph-ayodele/receipts-ocr-worker/internal/entity"
)

const tableReceipts = "receipts"

var receiptColumns = []string{
	"id", "merchant", "total", "subtotal", "tax", "tax_rate", "status", "raw_ocr", "created_at", "updated_at",
}

// ReceiptRepository reads receipts and applies OCR results to them.
type ReceiptRepository interface {
	Create(ctx context.Context, id uuid.UUID, status constants.ReceiptStatus) (*entity.Receipt, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	// ApplyOCRResult writes the derived fields unless the receipt is already
	// ocr_done. applied is false for that guarded no-op.
	ApplyOCRResult(ctx context.Context, id uuid.UUID, upd entity.ReceiptOCRUpdate) (applied bool, err error)
}

type receiptRepo struct {
	drv *entsql.Driver
	log *slog.Logger
}

func NewReceiptRepository(drv *entsql.Driver, log *slog.Logger) ReceiptRepository {
	if log == nil {
		log = slog.Default()
	}
	return &receiptRepo{drv: drv, log: log}
}

func (r *receiptRepo) Create(ctx context.Context, id uuid.UUID, status constants.ReceiptStatus) (*entity.Receipt, error) {
	ts := now()
	q, args := entsql.Dialect(r.drv.Dialect()).Insert(tableReceipts).
		Columns("id", "status", "created_at", "updated_at").
		Values(id, string(status), ts, ts).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("create receipt failed", "receipt_id", id, "error", err)
		return nil, dbErr("create receipt", err)
	}
	s := string(status)
	return &entity.Receipt{ID: id, Status: &s, CreatedAt: ts, UpdatedAt: ts}, nil
}

func (r *receiptRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	b := entsql.Dialect(r.drv.Dialect())
	q, args := b.Select(receiptColumns...).From(b.Table(tableReceipts)).Where(entsql.EQ("id", id)).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, dbErr("get receipt", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dbErr("get receipt", err)
		}
		return nil, fmt.Errorf("receipt %s: %w", id, common.ErrNotFound)
	}

	var (
		rec                           entity.Receipt
		merchant, status, rawOCR      sql.NullString
		total, subtotal, tax, taxRate sql.NullFloat64
	)
	if err := rows.Scan(&rec.ID, &merchant, &total, &subtotal, &tax, &taxRate, &status, &rawOCR, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, dbErr("scan receipt", err)
	}
	rec.Merchant = nullString(merchant)
	rec.Status = nullString(status)
	rec.Total = nullFloat(total)
	rec.Subtotal = nullFloat(subtotal)
	rec.Tax = nullFloat(tax)
	rec.TaxRate = nullFloat(taxRate)
	if rawOCR.Valid {
		rec.RawOCR = json.RawMessage(rawOCR.String)
	}
	return &rec, nil
}

// ApplyOCRResult is a single conditional UPDATE. The status predicate is the
// only guard against a second write, so concurrent writers need no lock.
func (r *receiptRepo) ApplyOCRResult(ctx context.Context, id uuid.UUID, upd entity.ReceiptOCRUpdate) (bool, error) {
	raw, err := json.Marshal(upd.RawOCR)
	if err != nil {
		return false, fmt.Errorf("encode raw_ocr: %w", err)
	}
	u := entsql.Dialect(r.drv.Dialect()).Update(tableReceipts).
		Set("merchant", upd.Merchant).
		Set("status", string(constants.ReceiptStatusOCRDone)).
		Set("raw_ocr", string(raw)).
		Set("updated_at", now()).
		Where(entsql.And(
			entsql.EQ("id", id),
			entsql.Or(
				entsql.IsNull("status"),
				entsql.NEQ("status", string(constants.ReceiptStatusOCRDone)),
			),
		))
	setFloat(u, "total", upd.Total)
	setFloat(u, "subtotal", upd.Subtotal)
	setFloat(u, "tax", upd.Tax)
	setFloat(u, "tax_rate", upd.TaxRate)

	q, args := u.Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.log.Error("apply ocr result failed", "receipt_id", id, "error", err)
		return false, dbErr("apply ocr result", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbErr("apply ocr result", err)
	}
	if n > 0 {
		r.log.Info("receipt updated from ocr", "receipt_id", id, "merchant", upd.Merchant)
		return true, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return false, err
	}
	r.log.Info("receipt already processed, skipping update", "receipt_id", id)
	return false, nil
}

func setFloat(u *entsql.UpdateBuilder, column string, v *float64) {
	if v == nil {
		u.SetNull(column)
		return
	}
	u.Set(column, *v)
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

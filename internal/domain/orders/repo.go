package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Save перезаписывает черновик целиком: шапку и позиции одной транзакцией.
func (r *Repo) Save(ctx context.Context, d *Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `
		INSERT INTO pos_orders (name, customer, company, currency, price_list, status, transaction_date, delivery_date, grand_total, rounded_total, total_qty)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (name) DO UPDATE SET
		  customer=$2, status=$6, delivery_date=$8,
		  grand_total=$9, rounded_total=$10, total_qty=$11, updated_at=now()
	`, d.Name, d.Customer, d.Company, d.Currency, d.PriceList, string(d.Status),
		d.TransactionDate, d.DeliveryDate, d.GrandTotal, d.RoundedTotal, d.TotalQty); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `DELETE FROM pos_order_lines WHERE order_name = $1`, d.Name); err != nil {
		return err
	}
	for i, l := range d.Lines {
		if _, err = tx.Exec(ctx, `
			INSERT INTO pos_order_lines (order_name, idx, item_code, item_name, qty, rate, discount_percentage, amount, serial_no, batch_no, stock_uom)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, d.Name, i+1, l.ItemCode, l.ItemName, l.Qty, l.Rate, l.DiscountPercentage, l.Amount, l.SerialNo, l.BatchNo, l.StockUOM); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Submit проводит документ: переход draft -> submitted строго однонаправленный.
func (r *Repo) Submit(ctx context.Context, d *Document) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE pos_orders SET status='submitted', delivery_date=$2, updated_at=now()
		WHERE name = $1 AND status = 'draft'
	`, d.Name, d.DeliveryDate)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("заказ %s уже проведён или не найден", d.Name)
	}

	// Списываем партии и серийники
	for _, l := range d.Lines {
		if l.BatchNo != "" {
			if _, err = tx.Exec(ctx, `
				UPDATE item_batches SET qty = qty - $3
				WHERE item_code = $1 AND batch_no = $2
			`, l.ItemCode, l.BatchNo, l.Qty); err != nil {
				return err
			}
		}
		for _, sn := range splitSerials(l.SerialNo) {
			if _, err = tx.Exec(ctx, `
				UPDATE item_serials SET consumed = TRUE WHERE serial_no = $1
			`, sn); err != nil {
				return err
			}
		}
		if l.IsStockItem {
			if _, err = tx.Exec(ctx, `
				UPDATE item_balances SET qty = qty - $2 WHERE item_code = $1
			`, l.ItemCode, l.Qty); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (r *Repo) Discard(ctx context.Context, name string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, `DELETE FROM pos_order_lines WHERE order_name = $1`, name); err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM pos_orders WHERE name = $1 AND status = 'draft'`, name); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func splitSerials(s string) []string {
	var out []string
	for _, sn := range strings.Split(s, "\n") {
		if sn = strings.TrimSpace(sn); sn != "" {
			out = append(out, sn)
		}
	}
	return out
}

package items

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const itemColumns = `
	i.item_code, i.item_name, i.item_group, COALESCE(p.rate, 0),
	i.stock_uom, COALESCE(b.qty, 0), i.image, i.is_stock_item,
	i.has_serial_no, i.has_batch_no, i.active, i.created_at
`

const itemJoins = `
	FROM items i
	LEFT JOIN item_prices p ON p.item_code = i.item_code AND p.price_list = $1
	LEFT JOIN item_balances b ON b.item_code = i.item_code
`

func scanItem(row pgx.Row) (*Item, error) {
	var it Item
	if err := row.Scan(
		&it.ItemCode,
		&it.ItemName,
		&it.ItemGroup,
		&it.PriceListRate,
		&it.StockUOM,
		&it.ActualQty,
		&it.Image,
		&it.IsStockItem,
		&it.HasSerialNo,
		&it.HasBatchNo,
		&it.Active,
		&it.CreatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &it, nil
}

func (r *Repo) GetByCode(ctx context.Context, priceList, itemCode string) (*Item, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+itemColumns+itemJoins+`
		WHERE i.item_code = $2
	`, priceList, itemCode)
	return scanItem(row)
}

// Search реализует поиск каталога для терминала.
// Порядок проверок: серийник -> партия -> штрихкод -> обычный поиск по имени/коду.
// При «особом» совпадении возвращаем единственный товар и заполняем
// соответствующее поле результата.
func (r *Repo) Search(ctx context.Context, start, pageLength int, priceList, itemGroup, searchValue string) (*SearchResult, error) {
	term := strings.TrimSpace(searchValue)

	if term != "" {
		// 1) серийный номер
		var itemCode string
		err := r.pool.QueryRow(ctx, `
			SELECT item_code FROM item_serials WHERE serial_no = $1 AND consumed = FALSE
		`, term).Scan(&itemCode)
		if err == nil {
			it, err := r.GetByCode(ctx, priceList, itemCode)
			if err != nil {
				return nil, err
			}
			if it != nil {
				return &SearchResult{Items: []Item{*it}, SerialNo: term}, nil
			}
		} else if err != pgx.ErrNoRows {
			return nil, err
		}

		// 2) партия
		err = r.pool.QueryRow(ctx, `
			SELECT item_code FROM item_batches WHERE batch_no = $1
		`, term).Scan(&itemCode)
		if err == nil {
			it, err := r.GetByCode(ctx, priceList, itemCode)
			if err != nil {
				return nil, err
			}
			if it != nil {
				return &SearchResult{Items: []Item{*it}, BatchNo: term}, nil
			}
		} else if err != pgx.ErrNoRows {
			return nil, err
		}

		// 3) штрихкод
		err = r.pool.QueryRow(ctx, `
			SELECT item_code FROM item_barcodes WHERE barcode = $1
		`, term).Scan(&itemCode)
		if err == nil {
			it, err := r.GetByCode(ctx, priceList, itemCode)
			if err != nil {
				return nil, err
			}
			if it != nil {
				return &SearchResult{Items: []Item{*it}, Barcode: term}, nil
			}
		} else if err != pgx.ErrNoRows {
			return nil, err
		}
	}

	// 4) обычный поиск
	q := `SELECT ` + itemColumns + itemJoins + ` WHERE i.active = TRUE`
	args := []any{priceList}
	if itemGroup != "" && itemGroup != "All Item Groups" {
		args = append(args, itemGroup)
		q += ` AND i.item_group = $2`
	}
	if term != "" {
		args = append(args, "%"+term+"%")
		q += ` AND (i.item_code ILIKE $` + strconv.Itoa(len(args)) + ` OR i.item_name ILIKE $` + strconv.Itoa(len(args)) + `)`
	}
	args = append(args, pageLength, start)
	q += ` ORDER BY i.item_name LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &SearchResult{}
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ItemCode, &it.ItemName, &it.ItemGroup, &it.PriceListRate,
			&it.StockUOM, &it.ActualQty, &it.Image, &it.IsStockItem,
			&it.HasSerialNo, &it.HasBatchNo, &it.Active, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		res.Items = append(res.Items, it)
	}
	return res, rows.Err()
}

func (r *Repo) ListGroups(ctx context.Context) ([]Group, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, active, created_at
		FROM item_groups
		WHERE active = TRUE
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Active, &g.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListBatches возвращает партии товара с остатком > 0.
func (r *Repo) ListBatches(ctx context.Context, itemCode string) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT batch_no, item_code, qty, expires_at
		FROM item_batches
		WHERE item_code = $1 AND qty > 0
		ORDER BY expires_at NULLS LAST, batch_no
	`, itemCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.BatchNo, &b.ItemCode, &b.Qty, &b.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BatchQty — остаток конкретной партии (0, nil если записи нет).
func (r *Repo) BatchQty(ctx context.Context, itemCode, batchNo string) (float64, error) {
	var qty float64
	err := r.pool.QueryRow(ctx, `
		SELECT qty FROM item_batches WHERE item_code = $1 AND batch_no = $2
	`, itemCode, batchNo).Scan(&qty)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return qty, err
}

// ListSerials — свободные серийники товара.
func (r *Repo) ListSerials(ctx context.Context, itemCode string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT serial_no FROM item_serials
		WHERE item_code = $1 AND consumed = FALSE
		ORDER BY serial_no
		LIMIT $2
	`, itemCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// List — весь активный каталог для выгрузки в Excel.
func (r *Repo) List(ctx context.Context, priceList string) ([]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+itemColumns+itemJoins+`
		WHERE i.active = TRUE
		ORDER BY i.item_group, i.item_name
	`, priceList)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ItemCode, &it.ItemName, &it.ItemGroup, &it.PriceListRate,
			&it.StockUOM, &it.ActualQty, &it.Image, &it.IsStockItem,
			&it.HasSerialNo, &it.HasBatchNo, &it.Active, &it.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) Upsert(ctx context.Context, it Item) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO items (item_code, item_name, item_group, stock_uom, image, is_stock_item, has_serial_no, has_batch_no, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE)
		ON CONFLICT (item_code) DO UPDATE SET
		  item_name=$2, item_group=$3, stock_uom=$4, image=$5,
		  is_stock_item=$6, has_serial_no=$7, has_batch_no=$8
	`, it.ItemCode, it.ItemName, it.ItemGroup, it.StockUOM, it.Image, it.IsStockItem, it.HasSerialNo, it.HasBatchNo)
	return err
}

func (r *Repo) SetPrice(ctx context.Context, priceList, itemCode string, rate float64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO item_prices (item_code, price_list, rate)
		VALUES ($1,$2,$3)
		ON CONFLICT (item_code, price_list) DO UPDATE SET rate=$3, updated_at=now()
	`, itemCode, priceList, rate)
	return err
}

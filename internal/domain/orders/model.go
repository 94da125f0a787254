package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
)

// Line — позиция заказа. Ключ позиции: item_code, а для партийного
// товара — пара (item_code, batch_no).
type Line struct {
	ItemCode           string
	ItemName           string
	Qty                float64
	Rate               float64
	DiscountPercentage float64
	Amount             float64 // заполняет сервис пересчёта
	SerialNo           string  // список серийников через перевод строки
	BatchNo            string
	StockUOM           string
	IsStockItem        bool
	HasSerialNo        bool
	HasBatchNo         bool
	ActualQty          float64
	ActualBatchQty     float64
}

// Key — идентичность позиции внутри документа.
func (l Line) Key() string {
	if l.BatchNo != "" {
		return l.ItemCode + "\x00" + l.BatchNo
	}
	return l.ItemCode
}

// SerialCount — сколько серийников уже набрано в позиции.
func (l Line) SerialCount() int {
	s := strings.TrimSpace(l.SerialNo)
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

type TaxLine struct {
	Description string
	Rate        float64
	Amount      float64
}

// Document — черновик/проведённый заказ терминала.
type Document struct {
	Name            string
	Customer        string
	Company         string
	Currency        string
	PriceList       string
	Status          Status
	TransactionDate time.Time
	DeliveryDate    time.Time
	Lines           []Line

	// Производные значения, приходят из сервиса пересчёта.
	Taxes        []TaxLine
	NetTotal     float64
	GrandTotal   float64
	RoundedTotal float64
	TotalQty     float64
}

// NewDraft создаёт пустой черновик с уникальным именем.
func NewDraft(company, currency, priceList string) *Document {
	return &Document{
		Name:            fmt.Sprintf("POS-ORD-%s", uuid.NewString()[:8]),
		Company:         company,
		Currency:        currency,
		PriceList:       priceList,
		Status:          StatusDraft,
		TransactionDate: time.Now(),
	}
}

// Clone — копия документа со своими слайсами. Снимок читают долгие
// операции (пересчёт прайсинга), пока оригинал продолжают править.
func (d *Document) Clone() *Document {
	cp := *d
	cp.Lines = append([]Line(nil), d.Lines...)
	cp.Taxes = append([]TaxLine(nil), d.Taxes...)
	return &cp
}

// FindLine ищет позицию по ключу (batch_no ?? item_code).
func (d *Document) FindLine(itemCode, batchNo string) *Line {
	for i := range d.Lines {
		l := &d.Lines[i]
		if batchNo != "" {
			if l.BatchNo == batchNo && l.ItemCode == itemCode {
				return l
			}
			continue
		}
		if l.ItemCode == itemCode && l.BatchNo == "" {
			return l
		}
	}
	return nil
}

// RemoveLine удаляет позицию по ключу; позиции с qty == 0 в документе не живут.
func (d *Document) RemoveLine(itemCode, batchNo string) bool {
	for i := range d.Lines {
		l := d.Lines[i]
		match := l.ItemCode == itemCode && l.BatchNo == batchNo
		if match {
			d.Lines = append(d.Lines[:i], d.Lines[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Document) IsSubmitted() bool { return d.Status == StatusSubmitted }

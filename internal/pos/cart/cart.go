package cart

import (
	"fmt"
	"strconv"

	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

// Field — каноническое имя редактируемого поля позиции.
type Field string

const (
	FieldQty      Field = "quantity"
	FieldDiscount Field = "discount_percentage"
	FieldRate     Field = "rate"
)

// MapMode переводит кнопку нумпада в имя поля.
func MapMode(mode string) (Field, bool) {
	switch mode {
	case numpad.ModeQty:
		return FieldQty, true
	case numpad.ModeDisc:
		return FieldDiscount, true
	case numpad.ModeRate:
		return FieldRate, true
	}
	return "", false
}

// Row — строка корзины для отрисовки.
type Row struct {
	ItemCode           string
	ItemName           string
	BatchNo            string
	Qty                float64
	Rate               float64
	DiscountPercentage float64
	Amount             float64
	InStock            bool // зелёный/красный индикатор наличия
}

type Totals struct {
	Taxes        []orders.TaxLine
	GrandTotal   float64
	RoundedTotal float64
	TotalQty     float64
}

// View — то, что корзина умеет просить у экрана. Telegram-реализация
// живёт в internal/bot, тесты подсовывают фейк.
type View interface {
	UpsertRow(row Row, highlight bool)
	RemoveRow(itemCode, batchNo string)
	HighlightField(itemCode, batchNo string, field Field)
	ClearFieldHighlight()
	RenderTotals(t Totals)
	SetCustomer(customer string)
	ScrollTo(itemCode, batchNo string)
	SetEditable(enabled bool)
	SetReceiptAvailable(available bool)
}

// Alerter — канал пользовательских предупреждений (отклонённые операции).
type Alerter interface {
	Alert(text string)
}

// Events — «намерения» корзины наверх, к контроллеру заказа.
// value передаётся строкой: численные правки идут абсолютным значением,
// кнопки «+/-» — токенами "+1"/"-1".
type Events interface {
	FieldChanged(itemCode string, field Field, value string, batchNo string)
}

// Selection — выбранная строка и активное поле нумпада. Не персистится.
type Selection struct {
	ItemCode string
	BatchNo  string
	Field    Field // "" — поле не выбрано
}

// Cart отрисовывает позиции заказа и склеивает ввод нумпада в правки полей.
// Документом владеет контроллер; здесь только ссылка для чтения.
type Cart struct {
	doc      *orders.Document
	pad      *numpad.Pad
	view     View
	alert    Alerter
	events   Events
	sel      *Selection
	editable bool
	rows     map[string]Row // ключ orders.Line.Key()
}

func New(doc *orders.Document, pad *numpad.Pad, view View, alert Alerter, events Events) *Cart {
	return &Cart{
		doc:      doc,
		pad:      pad,
		view:     view,
		alert:    alert,
		events:   events,
		editable: true,
		rows:     map[string]Row{},
	}
}

// Bind привязывает корзину к новому документу (новый заказ).
func (c *Cart) Bind(doc *orders.Document) {
	c.doc = doc
	c.Reset()
}

func rowKey(itemCode, batchNo string) string {
	if batchNo != "" {
		return itemCode + "\x00" + batchNo
	}
	return itemCode
}

// AddOrUpdateLine синхронизирует строку экрана с позицией документа.
// qty == 0 у существующей строки означает удаление строки.
func (c *Cart) AddOrUpdateLine(l orders.Line) {
	key := rowKey(l.ItemCode, l.BatchNo)
	_, exists := c.rows[key]

	if l.Qty == 0 {
		if exists {
			delete(c.rows, key)
			c.view.RemoveRow(l.ItemCode, l.BatchNo)
			if c.sel != nil && c.sel.ItemCode == l.ItemCode && c.sel.BatchNo == l.BatchNo {
				c.sel = nil
				c.view.ClearFieldHighlight()
			}
			c.refreshReceiptAction()
		}
		return
	}

	row := Row{
		ItemCode:           l.ItemCode,
		ItemName:           l.ItemName,
		BatchNo:            l.BatchNo,
		Qty:                l.Qty,
		Rate:               l.Rate,
		DiscountPercentage: l.DiscountPercentage,
		Amount:             l.Amount,
		InStock:            !l.IsStockItem || l.ActualQty >= l.Qty,
	}
	c.rows[key] = row
	c.view.UpsertRow(row, true)
	c.refreshReceiptAction()
}

// SelectLine выбирает строку; подсветка предыдущего активного поля снимается.
func (c *Cart) SelectLine(itemCode, batchNo string) {
	if _, ok := c.rows[rowKey(itemCode, batchNo)]; !ok {
		return
	}
	c.sel = &Selection{ItemCode: itemCode, BatchNo: batchNo}
	c.view.ClearFieldHighlight()
}

// SetActiveField назначает активное поле нумпада у выбранной строки.
func (c *Cart) SetActiveField(mode string) {
	if !c.editable {
		return
	}
	if c.sel == nil {
		c.alert.Alert("Сначала выберите позицию в корзине")
		return
	}
	f, ok := MapMode(mode)
	if !ok {
		return
	}
	c.sel.Field = f
	c.pad.Reset()
	c.view.HighlightField(c.sel.ItemCode, c.sel.BatchNo, f)
}

// Selection возвращает текущий выбор (nil — ничего не выбрано).
func (c *Cart) Selection() *Selection { return c.sel }

// ApplyNumpadValue отправляет накопленное значение нумпада в активное поле.
func (c *Cart) ApplyNumpadValue(raw float64) {
	if !c.editable {
		return
	}
	if c.sel == nil {
		c.alert.Alert("Сначала выберите позицию в корзине")
		return
	}
	if c.sel.Field == "" {
		c.alert.Alert("Выберите поле: Кол-во, Скидка или Цена")
		return
	}
	if c.sel.Field == FieldDiscount && raw > 100 {
		c.alert.Alert("Скидка не может быть больше 100%")
		c.pad.Reset()
		return
	}
	c.events.FieldChanged(c.sel.ItemCode, c.sel.Field, formatValue(raw), c.sel.BatchNo)
}

// IncrementQty / DecrementQty — кнопки «+/-» у строки. Наверх уходит
// относительный токен, контроллер нормализует его в абсолютное значение
// в момент применения (очередь правок может быть не пуста).
func (c *Cart) IncrementQty(itemCode, batchNo string) {
	if !c.editable {
		return
	}
	c.events.FieldChanged(itemCode, FieldQty, "+1", batchNo)
}

func (c *Cart) DecrementQty(itemCode, batchNo string) {
	if !c.editable {
		return
	}
	c.events.FieldChanged(itemCode, FieldQty, "-1", batchNo)
}

// EnterQty — прямой ввод количества в строке (не через нумпад).
func (c *Cart) EnterQty(itemCode, batchNo string, qty float64) {
	if !c.editable {
		return
	}
	c.events.FieldChanged(itemCode, FieldQty, formatValue(qty), batchNo)
}

// RecomputeTotals — чистая перерисовка уже посчитанных значений.
// Корзина налоги не считает.
func (c *Cart) RecomputeTotals(taxes []orders.TaxLine, grandTotal, roundedTotal, qtyTotal float64) {
	c.view.RenderTotals(Totals{
		Taxes:        taxes,
		GrandTotal:   grandTotal,
		RoundedTotal: roundedTotal,
		TotalQty:     qtyTotal,
	})
}

// ScrollTo прокручивает экран к строке после применения правки.
func (c *Cart) ScrollTo(itemCode, batchNo string) {
	c.view.ScrollTo(itemCode, batchNo)
}

// Reset очищает корзину: строки, выбор, буфер нумпада, нулевые итоги.
func (c *Cart) Reset() {
	c.rows = map[string]Row{}
	c.sel = nil
	c.pad.Reset()
	c.editable = true
	c.view.SetEditable(true)
	if c.doc != nil {
		c.view.SetCustomer(c.doc.Customer)
	}
	c.view.ClearFieldHighlight()
	c.view.RenderTotals(Totals{})
	c.refreshReceiptAction()
}

// SetEditable глушит весь ввод (заказ проведён или правка в полёте).
func (c *Cart) SetEditable(enabled bool) {
	c.editable = enabled
	c.view.SetEditable(enabled)
}

func (c *Cart) Editable() bool { return c.editable }

// Rows — снимок строк для перерисовки экрана.
func (c *Cart) Rows() []Row {
	out := make([]Row, 0, len(c.rows))
	if c.doc != nil {
		// порядок документа, не карты
		for _, l := range c.doc.Lines {
			if r, ok := c.rows[rowKey(l.ItemCode, l.BatchNo)]; ok {
				out = append(out, r)
			}
		}
		return out
	}
	for _, r := range c.rows {
		out = append(out, r)
	}
	return out
}

func (c *Cart) refreshReceiptAction() {
	c.view.SetReceiptAvailable(len(c.rows) > 0)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatMoney — единый формат денег на экране.
func FormatMoney(v float64, currency string) string {
	return fmt.Sprintf("%.2f %s", v, currency)
}

package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

type fakeView struct {
	rows             map[string]Row
	removed          []string
	highlighted      []string
	totals           Totals
	customer         string
	editable         bool
	receiptAvailable bool
}

func newFakeView() *fakeView {
	return &fakeView{rows: map[string]Row{}, editable: true}
}

func (v *fakeView) UpsertRow(row Row, _ bool) { v.rows[row.ItemCode+"/"+row.BatchNo] = row }
func (v *fakeView) RemoveRow(itemCode, batchNo string) {
	delete(v.rows, itemCode+"/"+batchNo)
	v.removed = append(v.removed, itemCode)
}
func (v *fakeView) HighlightField(itemCode, _ string, field Field) {
	v.highlighted = append(v.highlighted, itemCode+":"+string(field))
}
func (v *fakeView) ClearFieldHighlight()              {}
func (v *fakeView) RenderTotals(t Totals)             { v.totals = t }
func (v *fakeView) SetCustomer(customer string)       { v.customer = customer }
func (v *fakeView) ScrollTo(_, _ string)              {}
func (v *fakeView) SetEditable(enabled bool)          { v.editable = enabled }
func (v *fakeView) SetReceiptAvailable(available bool) { v.receiptAvailable = available }

type fakeAlerter struct{ alerts []string }

func (a *fakeAlerter) Alert(text string) { a.alerts = append(a.alerts, text) }

type change struct {
	itemCode string
	field    Field
	value    string
	batchNo  string
}

type fakeEvents struct{ changes []change }

func (e *fakeEvents) FieldChanged(itemCode string, field Field, value string, batchNo string) {
	e.changes = append(e.changes, change{itemCode, field, value, batchNo})
}

func newCart() (*Cart, *fakeView, *fakeAlerter, *fakeEvents) {
	doc := orders.NewDraft("Салон", "RUB", "Retail")
	view := newFakeView()
	alert := &fakeAlerter{}
	events := &fakeEvents{}
	c := New(doc, numpad.New(), view, alert, events)
	return c, view, alert, events
}

func line(code string, qty float64) orders.Line {
	return orders.Line{ItemCode: code, ItemName: code, Qty: qty, Rate: 100, IsStockItem: true, ActualQty: 10}
}

func TestAddOrUpdateLine(t *testing.T) {
	c, view, _, _ := newCart()

	c.AddOrUpdateLine(line("ITM-001", 1))
	require.Len(t, view.rows, 1)
	assert.True(t, view.rows["ITM-001/"].InStock)
	assert.True(t, view.receiptAvailable)

	// обновление количества, товар уходит в предзаказ
	l := line("ITM-001", 15)
	c.AddOrUpdateLine(l)
	require.Len(t, view.rows, 1)
	assert.False(t, view.rows["ITM-001/"].InStock)

	// qty == 0 убирает строку и прячет чек
	c.AddOrUpdateLine(line("ITM-001", 0))
	assert.Empty(t, view.rows)
	assert.Equal(t, []string{"ITM-001"}, view.removed)
	assert.False(t, view.receiptAvailable)
}

func TestNonStockItemAlwaysInStock(t *testing.T) {
	c, view, _, _ := newCart()
	c.AddOrUpdateLine(orders.Line{ItemCode: "SRV-001", Qty: 99, IsStockItem: false})
	assert.True(t, view.rows["SRV-001/"].InStock)
}

func TestSetActiveFieldRequiresSelection(t *testing.T) {
	c, _, alert, _ := newCart()

	c.SetActiveField(numpad.ModeQty)
	require.Len(t, alert.alerts, 1)
	assert.Nil(t, c.Selection())

	c.AddOrUpdateLine(line("ITM-001", 1))
	c.SelectLine("ITM-001", "")
	c.SetActiveField(numpad.ModeQty)
	require.NotNil(t, c.Selection())
	assert.Equal(t, FieldQty, c.Selection().Field)
}

func TestApplyNumpadValueRequiresSelectionAndField(t *testing.T) {
	c, _, alert, events := newCart()

	c.ApplyNumpadValue(5)
	require.Len(t, alert.alerts, 1)

	c.AddOrUpdateLine(line("ITM-001", 1))
	c.SelectLine("ITM-001", "")
	c.ApplyNumpadValue(5)
	require.Len(t, alert.alerts, 2) // поле ещё не выбрано
	assert.Empty(t, events.changes)

	c.SetActiveField(numpad.ModeQty)
	c.ApplyNumpadValue(5)
	require.Len(t, events.changes, 1)
	assert.Equal(t, change{"ITM-001", FieldQty, "5", ""}, events.changes[0])
}

func TestDiscountOver100RejectedAndBufferReset(t *testing.T) {
	c, _, alert, events := newCart()
	pad := numpad.New()
	doc := orders.NewDraft("Салон", "RUB", "Retail")
	c = New(doc, pad, newFakeView(), alert, events)

	c.AddOrUpdateLine(line("ITM-001", 1))
	c.SelectLine("ITM-001", "")
	c.SetActiveField(numpad.ModeDisc)

	pad.Press("1")
	pad.Press("5")
	pad.Press("0")
	c.ApplyNumpadValue(pad.Value())

	assert.Empty(t, events.changes) // правка не ушла наверх
	assert.Equal(t, "", pad.Buffer())
	require.NotEmpty(t, alert.alerts)
	assert.Contains(t, alert.alerts[len(alert.alerts)-1], "Скидка")
}

func TestIncrementDecrementSendTokens(t *testing.T) {
	c, _, _, events := newCart()
	c.AddOrUpdateLine(line("ITM-001", 1))

	c.IncrementQty("ITM-001", "")
	c.DecrementQty("ITM-001", "")

	require.Len(t, events.changes, 2)
	assert.Equal(t, "+1", events.changes[0].value)
	assert.Equal(t, "-1", events.changes[1].value)
}

func TestEditingDisabledAfterSubmit(t *testing.T) {
	c, _, _, events := newCart()
	c.AddOrUpdateLine(line("ITM-001", 1))
	c.SelectLine("ITM-001", "")
	c.SetActiveField(numpad.ModeQty)

	c.SetEditable(false)
	c.ApplyNumpadValue(3)
	c.IncrementQty("ITM-001", "")
	assert.Empty(t, events.changes)
}

func TestResetClearsEverything(t *testing.T) {
	c, view, _, _ := newCart()
	c.AddOrUpdateLine(line("ITM-001", 2))
	c.SelectLine("ITM-001", "")

	c.Reset()
	assert.Empty(t, c.Rows())
	assert.Nil(t, c.Selection())
	assert.Equal(t, Totals{}, view.totals)
	assert.False(t, view.receiptAvailable)
}

func TestRecomputeTotalsIsPureRender(t *testing.T) {
	c, view, _, _ := newCart()
	taxes := []orders.TaxLine{{Description: "НДС 20%", Rate: 20, Amount: 40}}

	c.RecomputeTotals(taxes, 240, 240, 2)
	assert.Equal(t, 240.0, view.totals.GrandTotal)
	assert.Equal(t, 2.0, view.totals.TotalQty)
	require.Len(t, view.totals.Taxes, 1)
}

package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/infra/logger"
	"github.com/Spok95/pos-bot/internal/infra/pricing"
	"github.com/Spok95/pos-bot/internal/pos/cart"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

/* Фейки внешних сервисов */

// fakePricer считает amount = qty*rate*(1-disc/100); налоги не считает,
// это просто заглушка внешнего сервиса.
type fakePricer struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	fail  bool
}

func (p *fakePricer) Recompute(_ context.Context, d *orders.Document, _ string) (*pricing.Derived, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fail {
		return nil, assert.AnError
	}

	out := &pricing.Derived{}
	for _, l := range d.Lines {
		amount := l.Qty * l.Rate * (1 - l.DiscountPercentage/100)
		out.Lines = append(out.Lines, pricing.DerivedLine{
			ItemCode: l.ItemCode, BatchNo: l.BatchNo, Rate: l.Rate, Amount: amount,
		})
		out.GrandTotal += amount
		out.TotalQty += l.Qty
	}
	out.NetTotal = out.GrandTotal
	out.RoundedTotal = float64(int64(out.GrandTotal + 0.5))
	return out, nil
}

type fakeItems struct {
	items    map[string]*items.Item
	batchQty map[string]float64
}

func (f *fakeItems) GetByCode(_ context.Context, _, itemCode string) (*items.Item, error) {
	return f.items[itemCode], nil
}

func (f *fakeItems) BatchQty(_ context.Context, itemCode, batchNo string) (float64, error) {
	return f.batchQty[itemCode+"/"+batchNo], nil
}

type fakeStore struct {
	mu      sync.Mutex
	saves   int
	submits int
	fail    bool
}

func (s *fakeStore) Save(_ context.Context, _ *orders.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return nil
}

func (s *fakeStore) Submit(_ context.Context, _ *orders.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return assert.AnError
	}
	s.submits++
	return nil
}

func (s *fakeStore) Discard(_ context.Context, _ string) error { return nil }

func (s *fakeStore) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

type fakeFlow struct {
	mu     sync.Mutex
	calls  int
	choice Choice
}

func (f *fakeFlow) Resolve(_ context.Context, _ *orders.Document, _ orders.Line, _ float64) (Choice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.choice, nil
}

// blockingFlow имитирует настоящий диалог: Resolve висит, пока тест не
// пришлёт ответ через release.
type blockingFlow struct {
	entered chan struct{}
	release chan Choice
}

func (f *blockingFlow) Resolve(_ context.Context, _ *orders.Document, _ orders.Line, _ float64) (Choice, error) {
	f.entered <- struct{}{}
	return <-f.release, nil
}

type fakeAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *fakeAlerter) Alert(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, text)
}

func (a *fakeAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.alerts)
}

type nopView struct {
	mu               sync.Mutex
	receiptAvailable bool
	editable         bool
}

func (v *nopView) UpsertRow(cart.Row, bool)            {}
func (v *nopView) RemoveRow(string, string)            {}
func (v *nopView) HighlightField(string, string, cart.Field) {}
func (v *nopView) ClearFieldHighlight()                {}
func (v *nopView) RenderTotals(cart.Totals)            {}
func (v *nopView) SetCustomer(string)                  {}
func (v *nopView) ScrollTo(string, string)             {}
func (v *nopView) SetEditable(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.editable = enabled
}
func (v *nopView) SetReceiptAvailable(available bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.receiptAvailable = available
}

func (v *nopView) receipt() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.receiptAvailable
}

/* Сборка терминала на фейках */

type rig struct {
	c     *Controller
	cart  *cart.Cart
	view  *nopView
	price *fakePricer
	store *fakeStore
	flow  *fakeFlow
	alert *fakeAlerter
	src   *fakeItems
}

func plainItem(code string) *items.Item {
	return &items.Item{ItemCode: code, ItemName: code, PriceListRate: 100, StockUOM: "шт", IsStockItem: true, ActualQty: 10, Active: true}
}

func newRig(t *testing.T) *rig {
	t.Helper()
	src := &fakeItems{
		items: map[string]*items.Item{
			"ITM-001": plainItem("ITM-001"),
			"ITM-002": plainItem("ITM-002"),
		},
		batchQty: map[string]float64{},
	}
	price := &fakePricer{}
	store := &fakeStore{}
	flow := &fakeFlow{}
	alert := &fakeAlerter{}
	view := &nopView{}

	c := New(logger.New("dev"), price, src, store, flow, alert, Options{
		Company: "Салон", Currency: "RUB", PriceList: "Retail", DeliveryOffsetDays: 7,
	})
	ct := cart.New(c.Document(), numpad.New(), view, alert, c)
	c.BindCart(ct)

	return &rig{c: c, cart: ct, view: view, price: price, store: store, flow: flow, alert: alert, src: src}
}

func (r *rig) qty(code, batch string) float64 {
	l := r.c.Document().FindLine(code, batch)
	if l == nil {
		return 0
	}
	return l.Qty
}

/* Тесты */

func TestIncrementTwiceYieldsSingleLineQtyTwo(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()

	require.Len(t, r.c.Document().Lines, 1)
	assert.Equal(t, 2.0, r.qty("ITM-001", ""))
}

func TestQueuedEditsOnSameLineSerialize(t *testing.T) {
	r := newRig(t)
	r.price.delay = 30 * time.Millisecond
	ctx := context.Background()

	// вторая правка стартует, пока у первой ещё идёт пересчёт
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()

	assert.Equal(t, 3.0, r.qty("ITM-001", ""))
	assert.Equal(t, 3, r.price.calls)
}

func TestNegativeQtyRejectedKeepsPrior(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "2", "")
	r.c.Wait()
	require.Equal(t, 2.0, r.qty("ITM-001", ""))

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "-5", "")
	r.c.Wait()

	assert.Equal(t, 2.0, r.qty("ITM-001", ""))
	assert.GreaterOrEqual(t, r.alert.count(), 1)
}

func TestQtyZeroRemovesLine(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()
	require.Len(t, r.c.Document().Lines, 1)
	assert.True(t, r.view.receipt())

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "-1", "")
	r.c.Wait()

	assert.Empty(t, r.c.Document().Lines)
	assert.False(t, r.view.receipt())
}

func TestSerialTrackedItemRunsFlow(t *testing.T) {
	r := newRig(t)
	it := plainItem("ITM-SER")
	it.HasSerialNo = true
	r.src.items["ITM-SER"] = it
	r.flow.choice = Choice{Confirmed: true, Qty: 2, SerialNo: "SN-1\nSN-2"}
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-SER", "quantity", "+1", "")
	r.c.Wait()

	assert.Equal(t, 1, r.flow.calls)
	l := r.c.Document().FindLine("ITM-SER", "")
	require.NotNil(t, l)
	assert.Equal(t, 2.0, l.Qty)
	assert.Equal(t, 2, l.SerialCount())
}

func TestCancelledFlowDiscardsFreshLine(t *testing.T) {
	r := newRig(t)
	it := plainItem("ITM-SER")
	it.HasSerialNo = true
	r.src.items["ITM-SER"] = it
	r.flow.choice = Choice{Confirmed: false}
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-SER", "quantity", "+1", "")
	r.c.Wait()

	assert.Empty(t, r.c.Document().Lines)
}

func TestBatchTrackedWithoutBatchRunsFlow(t *testing.T) {
	r := newRig(t)
	it := plainItem("ITM-BAT")
	it.HasBatchNo = true
	r.src.items["ITM-BAT"] = it
	r.src.batchQty["ITM-BAT/B-1"] = 10
	r.flow.choice = Choice{Confirmed: true, Qty: 1, BatchNo: "B-1"}
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-BAT", "quantity", "+1", "")
	r.c.Wait()

	require.Equal(t, 1, r.flow.calls)
	l := r.c.Document().FindLine("ITM-BAT", "B-1")
	require.NotNil(t, l)
	assert.Equal(t, "B-1", l.BatchNo)
}

func TestSerialEditAppendsNotReplaces(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "serial_no", "SN-1", "")
	r.c.AddOrUpdateItem(ctx, "ITM-001", "serial_no", "SN-2", "")
	r.c.Wait()

	l := r.c.Document().FindLine("ITM-001", "")
	require.NotNil(t, l)
	assert.Equal(t, "SN-1\nSN-2", l.SerialNo)
	assert.Equal(t, 2.0, l.Qty) // qty следует за числом серийников
}

func TestUnknownItemIsSilentNoop(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "NO-SUCH", "quantity", "+1", "")
	r.c.Wait()

	assert.Empty(t, r.c.Document().Lines)
	assert.Zero(t, r.alert.count())
}

func TestSubmitWithoutCustomerFailsValidation(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()

	_, ok := r.c.SubmitOrder(ctx)
	assert.False(t, ok)
	assert.Equal(t, 0, r.store.submitCount()) // до персистентности не дошли
	assert.GreaterOrEqual(t, r.alert.count(), 1)
}

func TestSubmitEmptyOrderRejected(t *testing.T) {
	r := newRig(t)
	r.c.SetCustomer("Иванова")

	_, ok := r.c.SubmitOrder(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 0, r.store.submitCount())
}

func TestSubmitHappyPath(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "2", "")
	r.c.Wait()
	r.c.SetCustomer("Иванова")

	d, ok := r.c.SubmitOrder(ctx)
	require.True(t, ok)
	assert.Equal(t, orders.StatusSubmitted, d.Status)
	assert.Equal(t, 1, r.store.submitCount())
	// дата доставки: +7 дней от даты заказа
	assert.Equal(t, d.TransactionDate.AddDate(0, 0, 7), d.DeliveryDate)
	assert.False(t, r.cart.Editable())

	// дальнейшие правки не применяются
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()
	assert.Equal(t, 2.0, r.qty("ITM-001", ""))
}

func TestSubmitFailureKeepsDraft(t *testing.T) {
	r := newRig(t)
	r.store.fail = true
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "1", "")
	r.c.Wait()
	r.c.SetCustomer("Иванова")

	_, ok := r.c.SubmitOrder(ctx)
	assert.False(t, ok)
	assert.Equal(t, orders.StatusDraft, r.c.Document().Status)
	assert.True(t, r.cart.Editable())
}

func TestCustomerEditNotBlockedByOpenDialog(t *testing.T) {
	flow := &blockingFlow{entered: make(chan struct{}), release: make(chan Choice)}
	it := plainItem("ITM-SER")
	it.HasSerialNo = true
	src := &fakeItems{items: map[string]*items.Item{"ITM-SER": it}, batchQty: map[string]float64{}}
	view := &nopView{}
	alert := &fakeAlerter{}

	c := New(logger.New("dev"), &fakePricer{}, src, &fakeStore{}, flow, alert, Options{
		Company: "Салон", Currency: "RUB", PriceList: "Retail", DeliveryOffsetDays: 7,
	})
	ct := cart.New(c.Document(), numpad.New(), view, alert, c)
	c.BindCart(ct)
	ctx := context.Background()

	c.AddOrUpdateItem(ctx, "ITM-SER", "quantity", "+1", "")
	<-flow.entered // диалог открыт и ждёт ответа из чата

	// правки вне этой строки не должны ждать диалога
	done := make(chan struct{})
	go func() {
		c.SetCustomer("Иванов Иван")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("SetCustomer ждёт завершения диалога выбора серийников")
	}

	flow.release <- Choice{Confirmed: true, Qty: 1, SerialNo: "SN-1"}
	c.Wait()

	assert.Equal(t, "Иванов Иван", c.Document().Customer)
	l := c.Document().FindLine("ITM-SER", "")
	require.NotNil(t, l)
	assert.Equal(t, 1.0, l.Qty)
}

func TestDistinctLinesDoNotSerialize(t *testing.T) {
	r := newRig(t)
	r.price.delay = 100 * time.Millisecond
	ctx := context.Background()

	start := time.Now()
	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.AddOrUpdateItem(ctx, "ITM-002", "quantity", "+1", "")
	r.c.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, 1.0, r.qty("ITM-001", ""))
	assert.Equal(t, 1.0, r.qty("ITM-002", ""))
	// пересчёты разных строк идут параллельно, а не друг за другом
	assert.Less(t, elapsed, 180*time.Millisecond)
}

func TestPricingFailureKeepsOptimisticQty(t *testing.T) {
	r := newRig(t)
	r.price.fail = true
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()

	// количество применено оптимистично, пользователь предупреждён
	assert.Equal(t, 1.0, r.qty("ITM-001", ""))
	assert.GreaterOrEqual(t, r.alert.count(), 1)
}

func TestPricingFailureRollsBackDiscountAndRate(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "2", "")
	r.c.Wait()

	r.price.fail = true
	r.c.AddOrUpdateItem(ctx, "ITM-001", "discount_percentage", "50", "")
	r.c.Wait()

	// скидка, в отличие от количества, откатывается к значению до правки
	l := r.c.Document().FindLine("ITM-001", "")
	require.NotNil(t, l)
	assert.Equal(t, 0.0, l.DiscountPercentage)
	assert.Equal(t, 2.0, l.Qty)
	assert.GreaterOrEqual(t, r.alert.count(), 1)

	r.c.AddOrUpdateItem(ctx, "ITM-001", "rate", "80", "")
	r.c.Wait()
	assert.Equal(t, 100.0, l.Rate)
}

func TestNewOrderResetsDocument(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "+1", "")
	r.c.Wait()
	old := r.c.Document().Name

	d := r.c.NewOrder(ctx)
	assert.NotEqual(t, old, d.Name)
	assert.Equal(t, orders.StatusDraft, d.Status)
	assert.Empty(t, d.Lines)
	assert.Empty(t, r.cart.Rows())
}

func TestDiscountAndRateEdits(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.c.AddOrUpdateItem(ctx, "ITM-001", "quantity", "2", "")
	r.c.AddOrUpdateItem(ctx, "ITM-001", "discount_percentage", "50", "")
	r.c.Wait()

	l := r.c.Document().FindLine("ITM-001", "")
	require.NotNil(t, l)
	assert.Equal(t, 50.0, l.DiscountPercentage)
	// fakePricer: 2 * 100 * 0.5
	assert.Equal(t, 100.0, l.Amount)
	assert.Equal(t, 100.0, r.c.Document().GrandTotal)

	r.c.AddOrUpdateItem(ctx, "ITM-001", "rate", "80", "")
	r.c.Wait()
	assert.Equal(t, 80.0, l.Rate)
}

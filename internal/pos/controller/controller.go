package controller

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/infra/metrics"
	"github.com/Spok95/pos-bot/internal/infra/pricing"
	"github.com/Spok95/pos-bot/internal/pos/cart"
)

// PricingService — внешний сервис пересчёта производных полей.
type PricingService interface {
	Recompute(ctx context.Context, d *orders.Document, changedField string) (*pricing.Derived, error)
}

// ItemSource — карточки и остатки каталога.
type ItemSource interface {
	GetByCode(ctx context.Context, priceList, itemCode string) (*items.Item, error)
	BatchQty(ctx context.Context, itemCode, batchNo string) (float64, error)
}

// Persistence — хранение документа заказа.
type Persistence interface {
	Save(ctx context.Context, d *orders.Document) error
	Submit(ctx context.Context, d *orders.Document) error
	Discard(ctx context.Context, name string) error
}

// Choice — результат диалога выбора серийников/партии.
type Choice struct {
	Confirmed bool
	Qty       float64
	SerialNo  string // через перевод строки
	BatchNo   string
}

// DisambiguationFlow — внешний диалог выбора серийников/партии.
// Вызывается внутри шага очереди строки и блокирует её до ответа,
// что сохраняет порядок правок этой строки.
type DisambiguationFlow interface {
	Resolve(ctx context.Context, d *orders.Document, line orders.Line, requestedQty float64) (Choice, error)
}

// Options — параметры нового заказа.
type Options struct {
	Company            string
	Currency           string
	PriceList          string
	DeliveryOffsetDays int
}

// Controller владеет документом заказа. Все мутации корзины проходят
// через AddOrUpdateItem; правки одной и той же строки выстраиваются в
// FIFO-очередь: применение -> пересчёт -> перерисовка идут атомарным
// шагом, следующая правка строки ждёт завершения предыдущей.
type Controller struct {
	log    *slog.Logger
	pricer PricingService
	src    ItemSource
	store  Persistence
	flow   DisambiguationFlow
	alert  cart.Alerter
	opts   Options

	// mu защищает doc и cart. Держится только на время мутаций:
	// диалог выбора серийников/партии и поход в сервис пересчёта
	// идут без него, шаги других строк при этом не ждут.
	mu   sync.Mutex
	doc  *orders.Document
	cart *cart.Cart

	// номера снимков, ушедших в пересчёт: устаревший результат,
	// пришедший позже более свежего, не применяется
	priceSeq   uint64
	appliedSeq uint64

	qmu    sync.Mutex
	queues map[string]*lineQueue
	wg     sync.WaitGroup
}

type lineQueue struct {
	tasks   []func()
	running bool
}

func New(log *slog.Logger, pricer PricingService, src ItemSource, store Persistence, flow DisambiguationFlow, alert cart.Alerter, opts Options) *Controller {
	if opts.DeliveryOffsetDays <= 0 {
		opts.DeliveryOffsetDays = 7
	}
	return &Controller{
		log:    log,
		pricer: pricer,
		src:    src,
		store:  store,
		flow:   flow,
		alert:  alert,
		opts:   opts,
		doc:    orders.NewDraft(opts.Company, opts.Currency, opts.PriceList),
		queues: map[string]*lineQueue{},
	}
}

// BindCart привязывает корзину (после конструирования обеих сторон).
func (c *Controller) BindCart(ct *cart.Cart) {
	c.cart = ct
	ct.Bind(c.doc)
}

func (c *Controller) Document() *orders.Document { return c.doc }

// FieldChanged реализует cart.Events.
func (c *Controller) FieldChanged(itemCode string, field cart.Field, value string, batchNo string) {
	c.AddOrUpdateItem(context.Background(), itemCode, string(field), value, batchNo)
}

// Интенты браузера каталога.

func (c *Controller) OnSingleMatch(itemCode string) {
	c.AddOrUpdateItem(context.Background(), itemCode, "quantity", "+1", "")
}

func (c *Controller) OnSerialMatch(itemCode, serialNo string) {
	c.AddOrUpdateItem(context.Background(), itemCode, "serial_no", serialNo, "")
}

func (c *Controller) OnBatchMatch(itemCode, batchNo string) {
	c.AddOrUpdateItem(context.Background(), itemCode, "quantity", "+1", batchNo)
}

// AddOrUpdateItem ставит правку поля в очередь своей строки и возвращается.
// Ключ очереди: batch_no ?? item_code.
func (c *Controller) AddOrUpdateItem(ctx context.Context, itemCode, field, value, batchNo string) {
	key := itemCode
	if batchNo != "" {
		key = itemCode + "\x00" + batchNo
	}
	c.enqueue(key, func() {
		c.applyStep(ctx, itemCode, field, value, batchNo)
	})
}

func (c *Controller) enqueue(key string, task func()) {
	c.wg.Add(1)
	wrapped := func() {
		defer c.wg.Done()
		task()
	}

	c.qmu.Lock()
	q := c.queues[key]
	if q == nil {
		q = &lineQueue{}
		c.queues[key] = q
	}
	q.tasks = append(q.tasks, wrapped)
	if !q.running {
		q.running = true
		go c.drain(q)
	}
	c.qmu.Unlock()
}

func (c *Controller) drain(q *lineQueue) {
	for {
		c.qmu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			c.qmu.Unlock()
			return
		}
		task := q.tasks[0]
		q.tasks = q.tasks[1:]
		c.qmu.Unlock()

		task()
	}
}

// Wait дожидается применения всех поставленных правок.
func (c *Controller) Wait() { c.wg.Wait() }

// applyStep — один шаг очереди строки: применить правку, пересчитать,
// перерисовать. Следующая правка той же строки ждёт завершения шага.
func (c *Controller) applyStep(ctx context.Context, itemCode, field, value, batchNo string) {
	snap, prior, renderLine, ok := c.applyEdit(ctx, itemCode, field, value, batchNo)
	if !ok {
		return
	}
	c.finishStep(ctx, field, snap, prior, renderLine)
}

// applyEdit применяет правку к документу под mu и возвращает снимок
// строки после правки и до неё (prior нужен для отката при отказе
// прайсинга). ok == false — шаг закончился на применении.
func (c *Controller) applyEdit(ctx context.Context, itemCode, field, value, batchNo string) (snap, prior orders.Line, renderLine, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc.IsSubmitted() {
		return
	}

	line := c.doc.FindLine(itemCode, batchNo)
	created := false
	if line == nil {
		it, err := c.src.GetByCode(ctx, c.doc.PriceList, itemCode)
		if err != nil {
			c.log.Error("item lookup failed", "item_code", itemCode, "err", err)
			c.alert.Alert("Не удалось получить карточку товара")
			return
		}
		if it == nil {
			// товара больше нет в каталоге — молча отбрасываем
			return
		}
		c.doc.Lines = append(c.doc.Lines, orders.Line{
			ItemCode:    it.ItemCode,
			ItemName:    it.ItemName,
			Rate:        it.PriceListRate,
			StockUOM:    it.StockUOM,
			BatchNo:     batchNo,
			IsStockItem: it.IsStockItem,
			HasSerialNo: it.HasSerialNo,
			HasBatchNo:  it.HasBatchNo,
			ActualQty:   it.ActualQty,
		})
		line = &c.doc.Lines[len(c.doc.Lines)-1]
		created = true
	}

	prior = *line

	switch field {
	case "quantity":
		l, applied := c.applyQty(ctx, line, value, created)
		if !applied {
			return
		}
		line = l
	case "serial_no":
		// серийники дописываются, а не заменяются
		sn := strings.TrimSpace(line.SerialNo + "\n" + value)
		line.SerialNo = sn
		line.Qty = float64(line.SerialCount())
	case "discount_percentage":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		line.DiscountPercentage = v
		if created && line.Qty == 0 {
			line.Qty = 1
		}
	case "rate":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return
		}
		line.Rate = v
		if created && line.Qty == 0 {
			line.Qty = 1
		}
	default:
		c.log.Warn("unknown field edit", "field", field)
		return
	}

	// qty == 0 — позиция покидает документ
	if line.Qty == 0 {
		removed := *line
		c.doc.RemoveLine(itemCode, removed.BatchNo)
		c.cart.AddOrUpdateLine(removed) // qty 0 => строка уходит и с экрана
		return removed, prior, false, true
	}

	return *line, prior, true, true
}

// applyQty нормализует токены "+1"/"-1" к абсолютному значению и решает,
// нужен ли диалог выбора серийников/партии перед применением. mu захвачен
// на входе и на выходе; на время диалога mu отпускается — ответ приходит
// из того же цикла обновлений, который обслуживает остальные чаты.
// Указатель на строку после диалога может смениться, вернувшийся l
// актуален.
func (c *Controller) applyQty(ctx context.Context, line *orders.Line, value string, created bool) (l *orders.Line, ok bool) {
	prev := line.Qty
	target, ok2 := normalizeQty(value, prev)
	if !ok2 {
		return line, false
	}
	if target < 0 {
		// отрицательное количество не применяем, строка остаётся как была
		c.alert.Alert("Количество не может быть отрицательным")
		if created {
			c.doc.RemoveLine(line.ItemCode, line.BatchNo)
		}
		return nil, false
	}

	if target > 0 && c.flow != nil && c.needsDisambiguation(ctx, line) {
		itemCode, batchNo := line.ItemCode, line.BatchNo
		pending := *line
		docSnap := c.doc.Clone()

		c.mu.Unlock()
		choice, err := c.flow.Resolve(ctx, docSnap, pending, target)
		c.mu.Lock()

		if err != nil {
			c.log.Error("serial/batch flow failed", "item_code", itemCode, "err", err)
			c.alert.Alert("Не удалось выбрать серийные номера/партию")
			choice = Choice{}
		}
		// пока mu был отпущен, другие строки могли подвинуть слайс
		line = c.doc.FindLine(itemCode, batchNo)
		if line == nil {
			return nil, false
		}
		if !choice.Confirmed {
			// отменили, ничего не выбрав: свежая нулевая строка выбрасывается
			if created || prev == 0 {
				c.doc.RemoveLine(itemCode, batchNo)
				c.cart.AddOrUpdateLine(orders.Line{ItemCode: itemCode, BatchNo: batchNo})
			}
			return nil, false
		}
		if choice.BatchNo != "" {
			line.BatchNo = choice.BatchNo
		}
		if choice.SerialNo != "" {
			line.SerialNo = choice.SerialNo
		}
		line.Qty = choice.Qty
		if line.BatchNo != "" {
			if bq, err := c.src.BatchQty(ctx, line.ItemCode, line.BatchNo); err == nil {
				line.ActualBatchQty = bq
			}
		}
		return line, true
	}

	line.Qty = target
	return line, true
}

// needsDisambiguation: серийный товар; партийный без выбранной партии;
// либо остаток партии расходится с общим остатком.
func (c *Controller) needsDisambiguation(ctx context.Context, line *orders.Line) bool {
	if line.HasSerialNo {
		return true
	}
	if !line.HasBatchNo {
		return false
	}
	if line.BatchNo == "" {
		return true
	}
	bq, err := c.src.BatchQty(ctx, line.ItemCode, line.BatchNo)
	if err != nil {
		c.log.Error("batch qty lookup failed", "item_code", line.ItemCode, "err", err)
		return false
	}
	line.ActualBatchQty = bq
	return bq != line.ActualQty
}

// finishStep: пересчёт производных полей, сохранение, перерисовка.
// Сервис пересчёта читает снимок документа, mu на время похода отпущен.
func (c *Controller) finishStep(ctx context.Context, changedField string, line, prior orders.Line, renderLine bool) {
	c.mu.Lock()
	c.priceSeq++
	seq := c.priceSeq
	docSnap := c.doc.Clone()
	c.mu.Unlock()

	derived, err := c.pricer.Recompute(ctx, docSnap, changedField)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		metrics.PricingErrors.Inc()
		c.log.Error("pricing recompute failed", "order", c.doc.Name, "err", err)
		c.alert.Alert("Не удалось пересчитать заказ, значения могут быть неточными")
		// количество остаётся оптимистичным, остальные правки откатываются
		c.revertEdit(changedField, prior)
	} else if seq > c.appliedSeq {
		// более поздний снимок уже включал эту правку
		c.appliedSeq = seq
		c.applyDerived(derived)
	}

	if err := c.store.Save(ctx, c.doc); err != nil {
		c.log.Error("order save failed", "order", c.doc.Name, "err", err)
	}

	if renderLine {
		if l := c.doc.FindLine(line.ItemCode, line.BatchNo); l != nil {
			c.cart.AddOrUpdateLine(*l)
		}
	}
	c.cart.RecomputeTotals(c.doc.Taxes, c.doc.GrandTotal, c.doc.RoundedTotal, c.doc.TotalQty)
	if renderLine {
		c.cart.ScrollTo(line.ItemCode, line.BatchNo)
	}
}

// revertEdit возвращает строке значение поля до правки, если пересчёт
// не удался. Количество не трогаем: оно остаётся на экране как ввели.
func (c *Controller) revertEdit(changedField string, prior orders.Line) {
	l := c.doc.FindLine(prior.ItemCode, prior.BatchNo)
	if l == nil {
		return
	}
	switch changedField {
	case "discount_percentage":
		l.DiscountPercentage = prior.DiscountPercentage
	case "rate":
		l.Rate = prior.Rate
	}
}

func (c *Controller) applyDerived(d *pricing.Derived) {
	for _, dl := range d.Lines {
		if l := c.doc.FindLine(dl.ItemCode, dl.BatchNo); l != nil {
			l.Rate = dl.Rate
			l.Amount = dl.Amount
		}
	}
	c.doc.Taxes = d.Taxes
	c.doc.NetTotal = d.NetTotal
	c.doc.GrandTotal = d.GrandTotal
	c.doc.RoundedTotal = d.RoundedTotal
	c.doc.TotalQty = d.TotalQty
}

// SetCustomer назначает покупателя текущего черновика.
func (c *Controller) SetCustomer(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc.IsSubmitted() {
		return
	}
	c.doc.Customer = name
}

// SubmitOrder проводит заказ: непустая корзина, назначенный покупатель,
// дата доставки со смещением от даты заказа.
func (c *Controller) SubmitOrder(ctx context.Context) (*orders.Document, bool) {
	c.Wait() // дождаться правок в полёте

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc.IsSubmitted() {
		return c.doc, false
	}
	if len(c.doc.Lines) == 0 {
		c.alert.Alert("Корзина пуста — добавьте хотя бы один товар")
		return nil, false
	}
	if strings.TrimSpace(c.doc.Customer) == "" {
		c.alert.Alert("Укажите покупателя перед проведением заказа")
		return nil, false
	}

	c.doc.DeliveryDate = c.doc.TransactionDate.AddDate(0, 0, c.opts.DeliveryOffsetDays)

	if err := c.store.Submit(ctx, c.doc); err != nil {
		c.log.Error("order submit failed", "order", c.doc.Name, "err", err)
		c.alert.Alert("Не удалось провести заказ, попробуйте ещё раз")
		return nil, false
	}

	c.doc.Status = orders.StatusSubmitted
	c.cart.SetEditable(false)
	metrics.OrdersSubmitted.Inc()
	c.log.Info("order submitted", "order", c.doc.Name, "grand_total", c.doc.GrandTotal)
	return c.doc, true
}

// NewOrder сбрасывает терминал на свежий черновик той же компании/прайс-листа.
func (c *Controller) NewOrder(ctx context.Context) *orders.Document {
	c.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.doc.IsSubmitted() && len(c.doc.Lines) == 0 {
		// пустой черновик просто выбрасываем из хранилища
		if err := c.store.Discard(ctx, c.doc.Name); err != nil {
			c.log.Error("draft discard failed", "order", c.doc.Name, "err", err)
		}
	}

	c.doc = orders.NewDraft(c.opts.Company, c.opts.Currency, c.opts.PriceList)
	c.cart.Bind(c.doc)
	return c.doc
}

// normalizeQty переводит "+1"/"-1" в абсолютное значение относительно
// текущего количества строки на момент применения (не постановки в очередь).
func normalizeQty(value string, prev float64) (float64, bool) {
	if strings.HasPrefix(value, "+") || strings.HasPrefix(value, "-") {
		d, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, false
		}
		return prev + d, true
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

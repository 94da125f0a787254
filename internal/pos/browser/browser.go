package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/infra/metrics"
)

// ItemSource — удалённый поиск каталога.
type ItemSource interface {
	Search(ctx context.Context, start, pageLength int, priceList, itemGroup, searchValue string) (*items.SearchResult, error)
}

// ListRenderer — оконная отрисовка сетки: строки подаются группами
// фиксированного размера, большой каталог не рисуется целиком.
type ListRenderer interface {
	Render(rows []items.Item, windowStart, windowSize int)
}

// Intents — намерения браузера наверх, к контроллеру заказа.
// Браузер сам документ не трогает.
type Intents interface {
	OnSingleMatch(itemCode string)            // +1 к количеству
	OnSerialMatch(itemCode, serialNo string)  // проставить серийник в строку
	OnBatchMatch(itemCode, batchNo string)    // строка по конкретной партии
}

const DefaultGroup = "All Item Groups"

// Browser — поиск каталога с дебаунсом и мемоизацией результатов.
// Кеш живёт до явного сброса (смена прайс-листа).
type Browser struct {
	log        *slog.Logger
	src        ItemSource
	view       ListRenderer
	intents    Intents
	priceList  string
	pageLength int
	debounce   time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	pending  *pendingSearch
	cache    map[string]*items.SearchResult
	rows     []items.Item
	windowAt int
}

type pendingSearch struct {
	ctx   context.Context
	term  string
	group string
}

func New(log *slog.Logger, src ItemSource, view ListRenderer, intents Intents, priceList string, pageLength int, debounce time.Duration) *Browser {
	if pageLength <= 0 {
		pageLength = 20
	}
	return &Browser{
		log:        log,
		src:        src,
		view:       view,
		intents:    intents,
		priceList:  priceList,
		pageLength: pageLength,
		debounce:   debounce,
		cache:      map[string]*items.SearchResult{},
	}
}

// Search — дебаунс: исполняется только последний вызов внутри окна,
// отменённый таймер просто не срабатывает.
func (b *Browser) Search(ctx context.Context, term, itemGroup string) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	p := &pendingSearch{ctx: ctx, term: term, group: itemGroup}
	b.pending = p
	b.timer = time.AfterFunc(b.debounce, func() {
		b.mu.Lock()
		if b.pending != p {
			b.mu.Unlock()
			return
		}
		b.pending = nil
		b.mu.Unlock()
		b.doSearch(p.ctx, p.term, p.group)
	})
	b.mu.Unlock()
}

// SearchNow — без дебаунса (переход по страницам, явное обновление).
func (b *Browser) SearchNow(ctx context.Context, term, itemGroup string) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = nil
	b.mu.Unlock()
	b.doSearch(ctx, term, itemGroup)
}

func (b *Browser) doSearch(ctx context.Context, term, itemGroup string) {
	if itemGroup == "" {
		itemGroup = DefaultGroup
	}
	key := itemGroup + "|" + term

	b.mu.Lock()
	res, hit := b.cache[key]
	b.mu.Unlock()

	if hit {
		metrics.SearchCacheHit.Inc()
	} else {
		var err error
		res, err = b.src.Search(ctx, 0, b.pageLength, b.priceList, itemGroup, term)
		if err != nil {
			b.log.Error("catalog search failed", "term", term, "err", err)
			return
		}
		metrics.SearchRemote.Inc()
		b.mu.Lock()
		b.cache[key] = res
		b.mu.Unlock()
	}

	b.dispatch(term, res)
}

// dispatch — разбор результата: уникальные совпадения по серийнику,
// партии и штрихкоду превращаются сразу в намерение и поле поиска
// считается использованным; иначе рисуем сетку.
func (b *Browser) dispatch(term string, res *items.SearchResult) {
	if len(res.Items) == 1 {
		it := res.Items[0]
		switch {
		case res.SerialNo != "":
			b.intents.OnSerialMatch(it.ItemCode, res.SerialNo)
			return
		case res.BatchNo != "":
			b.intents.OnBatchMatch(it.ItemCode, res.BatchNo)
			return
		case res.Barcode != "" || term != "":
			b.intents.OnSingleMatch(it.ItemCode)
			return
		}
	}

	b.mu.Lock()
	b.rows = res.Items
	b.windowAt = 0
	b.mu.Unlock()
	b.renderWindow()
}

// SelectItem — клик по плитке: только намерение «+1», без мутации заказа.
func (b *Browser) SelectItem(itemCode string) {
	b.intents.OnSingleMatch(itemCode)
}

// ResetCatalog сбрасывает мемоизацию (внешняя смена прайс-листа).
func (b *Browser) ResetCatalog(priceList string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if priceList != "" {
		b.priceList = priceList
	}
	b.cache = map[string]*items.SearchResult{}
	b.rows = nil
	b.windowAt = 0
}

/* Оконная прокрутка сетки */

func (b *Browser) renderWindow() {
	b.mu.Lock()
	rows := b.rows
	at := b.windowAt
	size := b.pageLength
	b.mu.Unlock()
	b.view.Render(rows, at, size)
}

func (b *Browser) NextWindow() {
	b.mu.Lock()
	if b.windowAt+b.pageLength < len(b.rows) {
		b.windowAt += b.pageLength
	}
	b.mu.Unlock()
	b.renderWindow()
}

func (b *Browser) PrevWindow() {
	b.mu.Lock()
	if b.windowAt >= b.pageLength {
		b.windowAt -= b.pageLength
	} else {
		b.windowAt = 0
	}
	b.mu.Unlock()
	b.renderWindow()
}

// Flush исполняет отложенный поиск немедленно, минуя остаток дебаунса.
func (b *Browser) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	p := b.pending
	b.pending = nil
	b.mu.Unlock()
	if p != nil {
		b.doSearch(p.ctx, p.term, p.group)
	}
}

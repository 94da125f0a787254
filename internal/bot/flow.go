package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/pos-bot/internal/dialog"
	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/pos/controller"
)

// disambigFlow — диалог выбора серийников/партии. Resolve вызывается из
// очереди правок строки и блокирует её; цикл обновлений бота при этом
// живёт и доставляет ответ пользователя через канал.
type disambigFlow struct {
	b      *Bot
	chatID int64

	mu      sync.Mutex
	pending *pendingChoice
}

type pendingChoice struct {
	ch      chan controller.Choice
	qty     float64
	line    orders.Line
	batches []items.Batch
}

func (f *disambigFlow) Resolve(ctx context.Context, _ *orders.Document, line orders.Line, requestedQty float64) (controller.Choice, error) {
	p := &pendingChoice{
		ch:   make(chan controller.Choice, 1),
		qty:  requestedQty,
		line: line,
	}

	f.mu.Lock()
	if f.pending != nil {
		f.mu.Unlock()
		return controller.Choice{}, fmt.Errorf("выбор серийников/партии уже запущен")
	}
	f.pending = p
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.pending = nil
		f.mu.Unlock()
	}()

	if line.HasSerialNo {
		f.askSerials(ctx, p)
	} else {
		if err := f.askBatch(ctx, p); err != nil {
			return controller.Choice{}, err
		}
	}

	select {
	case <-ctx.Done():
		return controller.Choice{}, ctx.Err()
	case choice := <-p.ch:
		_ = f.b.states.Set(ctx, f.chatID, dialog.StatePosMenu, dialog.Payload{})
		return choice, nil
	}
}

func (f *disambigFlow) askSerials(ctx context.Context, p *pendingChoice) {
	_ = f.b.states.Set(ctx, f.chatID, dialog.StatePosSerial, dialog.Payload{
		"item_code": p.line.ItemCode,
	})

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("«%s»: отсканируйте или введите серийные номера, по одному в строке.\n", p.line.ItemName))
	sb.WriteString(fmt.Sprintf("Нужно: %s шт.", trimFloat(p.qty)))

	// подсказка по свободным серийникам
	if free, err := f.b.items.ListSerials(ctx, p.line.ItemCode, 10); err == nil && len(free) > 0 {
		sb.WriteString("\n\nСвободные:\n" + strings.Join(free, "\n"))
	}

	m := tgbotapi.NewMessage(f.chatID, sb.String())
	m.ReplyMarkup = navKeyboard(false, true)
	f.b.send(m)
}

func (f *disambigFlow) askBatch(ctx context.Context, p *pendingChoice) error {
	batches, err := f.b.items.ListBatches(ctx, p.line.ItemCode)
	if err != nil {
		return fmt.Errorf("list batches: %w", err)
	}
	if len(batches) == 0 {
		// партий нет — проводим без партии
		p.ch <- controller.Choice{Confirmed: true, Qty: p.qty}
		return nil
	}
	p.batches = batches

	_ = f.b.states.Set(ctx, f.chatID, dialog.StatePosBatch, dialog.Payload{
		"item_code": p.line.ItemCode,
	})

	rows := [][]tgbotapi.InlineKeyboardButton{}
	for i, bt := range batches {
		label := fmt.Sprintf("%s — остаток %s", bt.BatchNo, trimFloat(bt.Qty))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("pb:%d", i)),
		))
	}
	rows = append(rows, navKeyboard(false, true).InlineKeyboard[0])
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)

	m := tgbotapi.NewMessage(f.chatID, fmt.Sprintf("«%s»: выберите партию:", p.line.ItemName))
	m.ReplyMarkup = kb
	f.b.send(m)
	return nil
}

// Active — идёт ли сейчас выбор для этого чата.
func (f *disambigFlow) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending != nil
}

// DeliverSerials принимает сообщение с серийниками (по одному в строке).
func (f *disambigFlow) DeliverSerials(text string) bool {
	f.mu.Lock()
	p := f.pending
	f.mu.Unlock()
	if p == nil {
		return false
	}

	serials := []string{}
	for _, s := range strings.Split(text, "\n") {
		if s = strings.TrimSpace(s); s != "" {
			serials = append(serials, s)
		}
	}
	if len(serials) == 0 {
		return false
	}

	p.ch <- controller.Choice{
		Confirmed: true,
		Qty:       float64(len(serials)),
		SerialNo:  strings.Join(serials, "\n"),
	}
	return true
}

// DeliverBatch принимает выбор партии по индексу кнопки.
func (f *disambigFlow) DeliverBatch(idx int) bool {
	f.mu.Lock()
	p := f.pending
	f.mu.Unlock()
	if p == nil || idx < 0 || idx >= len(p.batches) {
		return false
	}

	p.ch <- controller.Choice{
		Confirmed: true,
		Qty:       p.qty,
		BatchNo:   p.batches[idx].BatchNo,
	}
	return true
}

// Cancel отменяет диалог; свежая строка с нулевым количеством будет удалена.
func (f *disambigFlow) Cancel() bool {
	f.mu.Lock()
	p := f.pending
	f.mu.Unlock()
	if p == nil {
		return false
	}
	p.ch <- controller.Choice{Confirmed: false}
	return true
}

package bot

import (
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/pos/cart"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

// posView — экран терминала в Telegram. Корзина, итоги и нумпад живут
// в одном сообщении, которое редактируется на месте; сетка товаров —
// отдельным сообщением. Реализует cart.View, cart.Alerter и
// browser.ListRenderer.
type posView struct {
	b      *Bot
	chatID int64
	cart   *cart.Cart
	pad    *numpad.Pad

	mu        sync.Mutex
	cartMsgID int
	gridMsgID int

	customer  string
	totals    cart.Totals
	editable  bool
	receipt   bool
	focusKey  string // строка, к которой «прокручен» экран
	highlight cart.Field

	gridRows   []items.Item
	gridAt     int
	gridSize   int
	groups     []items.Group
	groupName  string // "" — все группы
	searchTerm string
}

func (v *posView) setGroup(name string) {
	v.mu.Lock()
	v.groupName = name
	v.mu.Unlock()
}

func (v *posView) setSearchTerm(term string) {
	v.mu.Lock()
	v.searchTerm = term
	v.mu.Unlock()
}

func (v *posView) searchState() (term, group string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.searchTerm, v.groupName
}

/* cart.View */

func (v *posView) UpsertRow(row cart.Row, highlight bool) {
	if highlight {
		v.mu.Lock()
		v.focusKey = rowKeyOf(row.ItemCode, row.BatchNo)
		v.mu.Unlock()
	}
	v.render()
}

func (v *posView) RemoveRow(itemCode, batchNo string) {
	v.mu.Lock()
	if v.focusKey == rowKeyOf(itemCode, batchNo) {
		v.focusKey = ""
	}
	v.mu.Unlock()
	v.render()
}

func (v *posView) HighlightField(itemCode, batchNo string, field cart.Field) {
	v.mu.Lock()
	v.focusKey = rowKeyOf(itemCode, batchNo)
	v.highlight = field
	v.mu.Unlock()
	v.render()
}

func (v *posView) ClearFieldHighlight() {
	v.mu.Lock()
	v.highlight = ""
	v.mu.Unlock()
	v.render()
}

func (v *posView) RenderTotals(t cart.Totals) {
	v.mu.Lock()
	v.totals = t
	v.mu.Unlock()
	v.render()
}

func (v *posView) SetCustomer(customer string) {
	v.mu.Lock()
	v.customer = customer
	v.mu.Unlock()
	v.render()
}

func (v *posView) ScrollTo(itemCode, batchNo string) {
	v.mu.Lock()
	v.focusKey = rowKeyOf(itemCode, batchNo)
	v.mu.Unlock()
	v.render()
}

func (v *posView) SetEditable(enabled bool) {
	v.mu.Lock()
	v.editable = enabled
	v.mu.Unlock()
	v.render()
}

func (v *posView) SetReceiptAvailable(available bool) {
	v.mu.Lock()
	v.receipt = available
	v.mu.Unlock()
	v.render()
}

/* cart.Alerter */

func (v *posView) Alert(text string) {
	v.b.send(tgbotapi.NewMessage(v.chatID, "⚠️ "+text))
}

/* browser.ListRenderer */

func (v *posView) Render(rows []items.Item, windowStart, windowSize int) {
	v.mu.Lock()
	v.gridRows = rows
	v.gridAt = windowStart
	v.gridSize = windowSize
	msgID := v.gridMsgID
	v.mu.Unlock()

	text, kb := v.gridContent()
	if msgID != 0 {
		v.b.send(tgbotapi.NewEditMessageTextAndMarkup(v.chatID, msgID, text, kb))
		return
	}
	m := tgbotapi.NewMessage(v.chatID, text)
	m.ReplyMarkup = kb
	sent, err := v.b.api.Send(m)
	if err != nil {
		v.b.log.Error("grid send failed", "err", err)
		return
	}
	v.mu.Lock()
	v.gridMsgID = sent.MessageID
	v.mu.Unlock()
}

func (v *posView) gridContent() (string, tgbotapi.InlineKeyboardMarkup) {
	v.mu.Lock()
	defer v.mu.Unlock()

	end := v.gridAt + v.gridSize
	if end > len(v.gridRows) {
		end = len(v.gridRows)
	}

	if len(v.gridRows) == 0 {
		return "Ничего не найдено.", navKeyboard(false, true)
	}

	text := fmt.Sprintf("Товары %d–%d из %d:", v.gridAt+1, end, len(v.gridRows))
	kb := [][]tgbotapi.InlineKeyboardButton{}
	for i := v.gridAt; i < end; i++ {
		it := v.gridRows[i]
		label := fmt.Sprintf("%s — %s", it.ItemName, cart.FormatMoney(it.PriceListRate, v.b.pos.Currency))
		if it.IsStockItem && it.ActualQty <= 0 {
			label = "🚫 " + label
		}
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("grid:item:%d", i)),
		))
	}

	nav := []tgbotapi.InlineKeyboardButton{}
	if v.gridAt > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", "grid:prev"))
	}
	if end < len(v.gridRows) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", "grid:next"))
	}
	if len(nav) > 0 {
		kb = append(kb, nav)
	}
	kb = append(kb, navKeyboard(false, true).InlineKeyboard[0])
	return text, tgbotapi.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// gridItem возвращает товар по абсолютному индексу из callback.
func (v *posView) gridItem(idx int) (items.Item, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx < 0 || idx >= len(v.gridRows) {
		return items.Item{}, false
	}
	return v.gridRows[idx], true
}

func (v *posView) setGroups(groups []items.Group) {
	v.mu.Lock()
	v.groups = groups
	v.mu.Unlock()
}

func (v *posView) groupByIdx(idx int) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if idx < 0 || idx >= len(v.groups) {
		return "", false
	}
	return v.groups[idx].Name, true
}

// render перерисовывает сообщение корзины целиком: строки в порядке
// документа, итоги, нумпад и действия.
func (v *posView) render() {
	if v.cart == nil {
		return
	}
	rows := v.cart.Rows()
	sel := v.cart.Selection()

	v.mu.Lock()
	customer := v.customer
	totals := v.totals
	editable := v.cart.Editable()
	receipt := v.receipt
	focus := v.focusKey
	msgID := v.cartMsgID
	v.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("🧾 Корзина")
	if customer != "" {
		sb.WriteString(" — " + customer)
	}
	sb.WriteString("\n")

	if len(rows) == 0 {
		sb.WriteString("\nПока пусто. Найдите товар через поиск или каталог.\n")
	}
	for _, r := range rows {
		mark := "  "
		if rowKeyOf(r.ItemCode, r.BatchNo) == focus {
			mark = "➡️"
		}
		stock := "🟢"
		if !r.InStock {
			stock = "🔴"
		}
		sb.WriteString(fmt.Sprintf("%s %s %s", mark, stock, r.ItemName))
		if r.BatchNo != "" {
			sb.WriteString(fmt.Sprintf(" [партия %s]", r.BatchNo))
		}
		sb.WriteString(fmt.Sprintf("\n     %s × %s", trimFloat(r.Qty), cart.FormatMoney(r.Rate, v.b.pos.Currency)))
		if r.DiscountPercentage > 0 {
			sb.WriteString(fmt.Sprintf(" − %s%%", trimFloat(r.DiscountPercentage)))
		}
		sb.WriteString(fmt.Sprintf(" = %s\n", cart.FormatMoney(r.Amount, v.b.pos.Currency)))
	}

	sb.WriteString("\n")
	for _, t := range totals.Taxes {
		sb.WriteString(fmt.Sprintf("%s: %s\n", t.Description, cart.FormatMoney(t.Amount, v.b.pos.Currency)))
	}
	sb.WriteString(fmt.Sprintf("Позиций: %s\n", trimFloat(totals.TotalQty)))
	sb.WriteString(fmt.Sprintf("Итого: %s", cart.FormatMoney(totals.RoundedTotal, v.b.pos.Currency)))

	if !editable {
		sb.WriteString("\n\n✅ Заказ проведён.")
	}

	kb := cartKeyboard(rows, sel, v.pad, editable, receipt)

	if msgID != 0 {
		v.b.send(tgbotapi.NewEditMessageTextAndMarkup(v.chatID, msgID, sb.String(), kb))
		return
	}
	m := tgbotapi.NewMessage(v.chatID, sb.String())
	m.ReplyMarkup = kb
	sent, err := v.b.api.Send(m)
	if err != nil {
		v.b.log.Error("cart send failed", "err", err)
		return
	}
	v.mu.Lock()
	v.cartMsgID = sent.MessageID
	v.mu.Unlock()
}

// detach заставляет следующий render отправить свежие сообщения
// (после проведения заказ остаётся на экране историей).
func (v *posView) detach() {
	v.mu.Lock()
	v.cartMsgID = 0
	v.gridMsgID = 0
	v.focusKey = ""
	v.highlight = ""
	v.totals = cart.Totals{}
	v.mu.Unlock()
}

func rowKeyOf(itemCode, batchNo string) string {
	if batchNo != "" {
		return itemCode + "\x00" + batchNo
	}
	return itemCode
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}

package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/pos-bot/internal/dialog"
	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/orders"
	"github.com/Spok95/pos-bot/internal/domain/users"
	"github.com/Spok95/pos-bot/internal/infra/pricing"
	"github.com/Spok95/pos-bot/internal/pos/browser"
	"github.com/Spok95/pos-bot/internal/pos/cart"
	"github.com/Spok95/pos-bot/internal/pos/controller"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

// POSConfig — параметры терминала из конфига.
type POSConfig struct {
	PriceList          string
	Currency           string
	Company            string
	PageLength         int
	SearchDebounce     time.Duration
	DeliveryOffsetDays int
}

type Bot struct {
	api       *tgbotapi.BotAPI
	log       *slog.Logger
	users     *users.Repo
	states    *dialog.Repo
	items     *items.Repo
	orders    *orders.Repo
	pricer    *pricing.Service
	adminChat int64
	pos       POSConfig

	mu       sync.Mutex
	sessions map[int64]*session
}

// session — терминал одного кассира. Корзина и браузер живут в памяти,
// документ заказа персистится репозиторием заказов на каждом шаге.
type session struct {
	ctrl    *controller.Controller
	cart    *cart.Cart
	pad     *numpad.Pad
	browser *browser.Browser
	view    *posView
	flow    *disambigFlow
}

func New(api *tgbotapi.BotAPI, log *slog.Logger,
	usersRepo *users.Repo, statesRepo *dialog.Repo,
	itemsRepo *items.Repo, ordersRepo *orders.Repo,
	pricer *pricing.Service, adminChatID int64, pos POSConfig) *Bot {

	return &Bot{
		api: api, log: log, users: usersRepo, states: statesRepo,
		items: itemsRepo, orders: ordersRepo, pricer: pricer,
		adminChat: adminChatID, pos: pos,
		sessions: map[int64]*session{},
	}
}

func (b *Bot) Run(ctx context.Context, timeoutSec int) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = timeoutSec
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd := <-updates:
			if upd.Message != nil {
				b.onMessage(ctx, upd)
			} else if upd.CallbackQuery != nil {
				b.onCallback(ctx, upd)
			}
		}
	}
}

func (b *Bot) send(msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send failed", "err", err)
	}
}

// posSession возвращает терминал чата, при первом обращении собирает его.
func (b *Bot) posSession(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[chatID]; ok {
		return s
	}

	flow := &disambigFlow{b: b, chatID: chatID}
	pad := numpad.New()
	view := &posView{b: b, chatID: chatID, pad: pad}

	ctrl := controller.New(b.log, b.pricer, b.items, b.orders, flow, view, controller.Options{
		Company:            b.pos.Company,
		Currency:           b.pos.Currency,
		PriceList:          b.pos.PriceList,
		DeliveryOffsetDays: b.pos.DeliveryOffsetDays,
	})
	ct := cart.New(ctrl.Document(), pad, view, view, ctrl)
	ctrl.BindCart(ct)
	view.cart = ct

	br := browser.New(b.log, b.items, view, ctrl, b.pos.PriceList, b.pos.PageLength, b.pos.SearchDebounce)

	s := &session{ctrl: ctrl, cart: ct, pad: pad, browser: br, view: view, flow: flow}
	b.sessions[chatID] = s
	return s
}

// downloadTelegramFile скачивает файл по FileID через Telegram API.
func (b *Bot) downloadTelegramFile(fileID string) ([]byte, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("get file url: %w", err)
	}

	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram returned status %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func (b *Bot) editTextAndClear(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID, text,
		tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}},
	)
	b.send(edit)
}

func (b *Bot) askFIO(chatID int64) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"),
		),
	)
	m := tgbotapi.NewMessage(chatID, "Введите, пожалуйста, ФИО одной строкой.")
	m.ReplyMarkup = kb
	b.send(m)
}

// showPosMenu — главный экран терминала: корзина + нумпад одним сообщением,
// снизу кнопки разделов.
func (b *Bot) showPosMenu(ctx context.Context, chatID int64) {
	s := b.posSession(chatID)
	_ = b.states.Set(ctx, chatID, dialog.StatePosMenu, dialog.Payload{})
	s.view.render()
}

func (b *Bot) showGroupPick(ctx context.Context, chatID int64, editMsgID *int) {
	groups, err := b.items.ListGroups(ctx)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "Ошибка загрузки групп товаров"))
		return
	}

	s := b.posSession(chatID)
	s.view.setGroups(groups)

	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(browser.DefaultGroup, "grp:all"),
		),
	}
	for i, g := range groups {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(g.Name, fmt.Sprintf("grp:%d", i)),
		))
	}
	rows = append(rows, navKeyboard(true, true).InlineKeyboard[0])
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)

	text := "Выберите группу товаров:"
	if editMsgID != nil {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, *editMsgID, text, kb))
	} else {
		m := tgbotapi.NewMessage(chatID, text)
		m.ReplyMarkup = kb
		b.send(m)
	}
}

func (b *Bot) askSearch(ctx context.Context, chatID int64) {
	_ = b.states.Set(ctx, chatID, dialog.StatePosSearch, dialog.Payload{})
	kb := navKeyboard(false, true)
	m := tgbotapi.NewMessage(chatID, "Введите название, штрихкод, серийный номер или номер партии:")
	m.ReplyMarkup = kb
	b.send(m)
}

func (b *Bot) askCustomer(ctx context.Context, chatID int64) {
	_ = b.states.Set(ctx, chatID, dialog.StatePosCustomer, dialog.Payload{})
	kb := navKeyboard(false, true)
	m := tgbotapi.NewMessage(chatID, "Введите имя покупателя:")
	m.ReplyMarkup = kb
	b.send(m)
}

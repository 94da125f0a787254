package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/pos-bot/internal/dialog"
	"github.com/Spok95/pos-bot/internal/domain/users"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

func (b *Bot) onMessage(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Document != nil {
		b.handleDocument(ctx, msg)
		return
	}
	b.handleStateMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	switch msg.Command() {
	case "start":
		// не затираем роль, если пользователь уже существует
		existing, _ := b.users.GetByTelegramID(ctx, tgID)

		defaultRole := users.RoleCashier
		if existing != nil && existing.Role != "" {
			defaultRole = existing.Role
		}
		fullName := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)

		u, err := b.users.UpsertByTelegram(ctx, tgID, fullName, defaultRole)
		if err != nil {
			b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось сохранить профиль"))
			return
		}
		// авто-админ
		if tgID == b.adminChat && (u.Role != users.RoleAdmin || u.Status != users.StatusApproved) {
			if _, err2 := b.users.Approve(ctx, tgID, users.RoleAdmin); err2 == nil {
				m := tgbotapi.NewMessage(chatID, "Привет, админ! Терминал и каталог доступны через кнопки снизу.")
				m.ReplyMarkup = adminReplyKeyboard()
				b.send(m)
				return
			}
		}
		if u.Status == users.StatusApproved {
			text := "Готово! Жмите «Терминал», чтобы начать продажу."
			m := tgbotapi.NewMessage(chatID, text)
			if u.Role == users.RoleAdmin {
				m.ReplyMarkup = adminReplyKeyboard()
			} else {
				m.ReplyMarkup = cashierReplyKeyboard()
			}
			b.send(m)
			return
		}

		_ = b.states.Set(ctx, chatID, dialog.StateAwaitFIO, dialog.Payload{})
		b.askFIO(chatID)
		return

	case "pos":
		u, _ := b.users.GetByTelegramID(ctx, tgID)
		if u == nil || u.Status != users.StatusApproved {
			b.send(tgbotapi.NewMessage(chatID, "Сначала пройдите регистрацию: /start"))
			return
		}
		b.showPosMenu(ctx, chatID)
		return

	case "help":
		b.send(tgbotapi.NewMessage(chatID,
			"Команды:\n/start — начать регистрацию/работу\n/pos — открыть терминал\n/help — помощь"))
		return

	default:
		b.send(tgbotapi.NewMessage(chatID, "Не знаю такую команду. Наберите /help"))
		return
	}
}

func (b *Bot) handleStateMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	st, _ := b.states.Get(ctx, chatID)

	// Нижняя панель
	switch msg.Text {
	case "Терминал":
		u, _ := b.users.GetByTelegramID(ctx, tgID)
		if u == nil || u.Status != users.StatusApproved {
			return
		}
		b.showPosMenu(ctx, chatID)
		return
	case "Новый заказ":
		u, _ := b.users.GetByTelegramID(ctx, tgID)
		if u == nil || u.Status != users.StatusApproved {
			return
		}
		b.startNewOrder(ctx, chatID)
		return
	case "Каталог":
		u, _ := b.users.GetByTelegramID(ctx, tgID)
		if u == nil || u.Status != users.StatusApproved || u.Role != users.RoleAdmin {
			return
		}
		_ = b.states.Set(ctx, chatID, dialog.StateAdmCatalogMenu, dialog.Payload{})
		b.showCatalogMenu(chatID, nil)
		return
	}

	switch st.State {
	case dialog.StateAwaitFIO:
		b.handleFIO(ctx, msg)

	case dialog.StatePosSearch:
		s := b.posSession(chatID)
		term := strings.TrimSpace(msg.Text)
		if term == "" {
			return
		}
		_, group := s.view.searchState()
		s.view.setSearchTerm(term)
		_ = b.states.Set(ctx, chatID, dialog.StatePosBrowse, dialog.Payload{})
		s.browser.Search(ctx, term, group)

	case dialog.StatePosCustomer:
		name := strings.TrimSpace(msg.Text)
		if name == "" {
			b.send(tgbotapi.NewMessage(chatID, "Имя покупателя не может быть пустым."))
			return
		}
		s := b.posSession(chatID)
		s.ctrl.SetCustomer(name)
		_ = b.states.Set(ctx, chatID, dialog.StatePosMenu, dialog.Payload{})

	case dialog.StatePosSerial:
		s := b.posSession(chatID)
		if !s.flow.DeliverSerials(msg.Text) {
			b.send(tgbotapi.NewMessage(chatID, "Не удалось распознать серийные номера, введите их по одному в строке."))
		}

	default:
		// свободный текст вне диалога трактуем как поиск по каталогу
		u, _ := b.users.GetByTelegramID(ctx, tgID)
		if u == nil || u.Status != users.StatusApproved {
			return
		}
		term := strings.TrimSpace(msg.Text)
		if term == "" {
			return
		}
		s := b.posSession(chatID)
		_, group := s.view.searchState()
		s.view.setSearchTerm(term)
		_ = b.states.Set(ctx, chatID, dialog.StatePosBrowse, dialog.Payload{})
		s.browser.Search(ctx, term, group)
	}
}

func (b *Bot) handleFIO(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	fio := strings.TrimSpace(msg.Text)
	if fio == "" {
		b.send(tgbotapi.NewMessage(chatID, "ФИО не может быть пустым, попробуйте ещё раз."))
		return
	}

	u, err := b.users.UpsertByTelegram(ctx, tgID, fio, users.RoleCashier)
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "Ошибка: не удалось сохранить профиль"))
		return
	}
	_ = b.states.Set(ctx, chatID, dialog.StateIdle, dialog.Payload{})
	b.send(tgbotapi.NewMessage(chatID, "Заявка отправлена администратору. Дождитесь подтверждения."))

	if b.adminChat != 0 {
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Принять", fmt.Sprintf("rq:approve:%d", tgID)),
				tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", fmt.Sprintf("rq:reject:%d", tgID)),
			),
		)
		m := tgbotapi.NewMessage(b.adminChat, fmt.Sprintf("Заявка на доступ к терминалу:\n%s (id %d)", u.FullName, tgID))
		m.ReplyMarkup = kb
		b.send(m)
	}
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	tgID := msg.From.ID
	st, _ := b.states.Get(ctx, chatID)
	if st.State != dialog.StateAdmCatalogImport {
		return
	}

	u, _ := b.users.GetByTelegramID(ctx, tgID)
	if u == nil || u.Status != users.StatusApproved || u.Role != users.RoleAdmin {
		b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён"))
		return
	}

	data, err := b.downloadTelegramFile(msg.Document.FileID)
	if err != nil {
		b.log.Error("catalog file download failed", "err", err)
		b.send(tgbotapi.NewMessage(chatID, "Не удалось скачать файл, попробуйте ещё раз."))
		return
	}
	b.handleCatalogImportExcel(ctx, chatID, data)
}

func (b *Bot) onCallback(ctx context.Context, upd tgbotapi.Update) {
	cb := upd.CallbackQuery
	chatID := cb.Message.Chat.ID
	msgID := cb.Message.MessageID
	data := cb.Data

	// убираем «часики» на кнопке
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.Error("callback ack failed", "err", err)
	}

	switch {
	case data == "nav:cancel":
		b.handleCancel(ctx, chatID)

	case data == "nav:back":
		b.showPosMenu(ctx, chatID)

	case strings.HasPrefix(data, "np:"):
		b.handleNumpad(chatID, strings.TrimPrefix(data, "np:"))

	case strings.HasPrefix(data, "cart:"):
		b.handleCartButton(chatID, strings.TrimPrefix(data, "cart:"))

	case strings.HasPrefix(data, "grid:"):
		b.handleGridButton(chatID, strings.TrimPrefix(data, "grid:"))

	case strings.HasPrefix(data, "grp:"):
		b.handleGroupPick(ctx, chatID, strings.TrimPrefix(data, "grp:"))

	case strings.HasPrefix(data, "pb:"):
		s := b.posSession(chatID)
		if idx, err := strconv.Atoi(strings.TrimPrefix(data, "pb:")); err == nil {
			s.flow.DeliverBatch(idx)
		}

	case strings.HasPrefix(data, "pos:"):
		b.handlePosAction(ctx, chatID, strings.TrimPrefix(data, "pos:"))

	case strings.HasPrefix(data, "cat:"):
		b.handleCatalogCallback(ctx, chatID, msgID, cb.From.ID, strings.TrimPrefix(data, "cat:"))

	case strings.HasPrefix(data, "rq:"):
		b.handleAccessRequest(ctx, chatID, msgID, cb.From.ID, strings.TrimPrefix(data, "rq:"))
	}
}

func (b *Bot) handleCancel(ctx context.Context, chatID int64) {
	s := b.posSession(chatID)
	if s.flow.Active() {
		s.flow.Cancel()
		return
	}
	b.showPosMenu(ctx, chatID)
}

func (b *Bot) handleNumpad(chatID int64, key string) {
	s := b.posSession(chatID)

	if key == "noop" {
		return
	}
	if key == "ok" {
		s.cart.ApplyNumpadValue(s.pad.Value())
		s.pad.Reset()
		s.view.render()
		return
	}

	ev, ok := s.pad.Press(key)
	if !ok {
		return
	}
	if ev.IsMode {
		if ev.Mode == numpad.ModeOrder {
			return
		}
		s.cart.SetActiveField(ev.Mode)
		return
	}
	// цифра или ⌫ — показываем новый буфер
	s.view.render()
}

func (b *Bot) handleCartButton(chatID int64, action string) {
	s := b.posSession(chatID)
	parts := strings.SplitN(action, ":", 2)
	if len(parts) != 2 {
		return
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}
	rows := s.cart.Rows()
	if idx < 0 || idx >= len(rows) {
		return
	}
	r := rows[idx]

	switch parts[0] {
	case "sel":
		s.cart.SelectLine(r.ItemCode, r.BatchNo)
		s.view.render()
	case "inc":
		s.cart.IncrementQty(r.ItemCode, r.BatchNo)
	case "dec":
		s.cart.DecrementQty(r.ItemCode, r.BatchNo)
	case "del":
		s.cart.EnterQty(r.ItemCode, r.BatchNo, 0)
	}
}

func (b *Bot) handleGridButton(chatID int64, action string) {
	s := b.posSession(chatID)
	switch {
	case action == "prev":
		s.browser.PrevWindow()
	case action == "next":
		s.browser.NextWindow()
	case strings.HasPrefix(action, "item:"):
		idx, err := strconv.Atoi(strings.TrimPrefix(action, "item:"))
		if err != nil {
			return
		}
		it, ok := s.view.gridItem(idx)
		if !ok {
			return
		}
		s.browser.SelectItem(it.ItemCode)
	}
}

func (b *Bot) handleGroupPick(ctx context.Context, chatID int64, raw string) {
	s := b.posSession(chatID)

	group := ""
	if raw != "all" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return
		}
		name, ok := s.view.groupByIdx(idx)
		if !ok {
			return
		}
		group = name
	}
	s.view.setGroup(group)

	term, _ := s.view.searchState()
	_ = b.states.Set(ctx, chatID, dialog.StatePosBrowse, dialog.Payload{})
	s.browser.SearchNow(ctx, term, group)
}

func (b *Bot) handlePosAction(ctx context.Context, chatID int64, action string) {
	s := b.posSession(chatID)

	// пока открыт диалог выбора серийников/партии, состояние чата занято
	// им: поиск/покупатель перевели бы чат в другое состояние, и ответ
	// диалога было бы некому доставить; submit/receipt ждут очередь правок,
	// которую этот же диалог держит. «Новый заказ» диалог сам отменяет.
	if s.flow.Active() && action != "new" {
		b.send(tgbotapi.NewMessage(chatID, "Сначала завершите выбор серийных номеров/партии."))
		return
	}

	switch action {
	case "search":
		b.askSearch(ctx, chatID)
	case "browse":
		b.showGroupPick(ctx, chatID, nil)
	case "customer":
		b.askCustomer(ctx, chatID)
	case "submit":
		if d, ok := s.ctrl.SubmitOrder(ctx); ok {
			_ = b.states.Set(ctx, chatID, dialog.StatePosSubmitted, dialog.Payload{})
			b.send(tgbotapi.NewMessage(chatID,
				fmt.Sprintf("Заказ %s проведён. Нажмите «Чек», чтобы получить чек, или «Новый заказ».", d.Name)))
		}
	case "receipt":
		if err := b.sendReceipt(chatID); err != nil {
			b.log.Error("receipt failed", "err", err)
			b.send(tgbotapi.NewMessage(chatID, "Не удалось сформировать чек."))
		}
	case "new":
		b.startNewOrder(ctx, chatID)
	}
}

func (b *Bot) startNewOrder(ctx context.Context, chatID int64) {
	s := b.posSession(chatID)
	if s.flow.Active() {
		s.flow.Cancel()
	}
	s.ctrl.NewOrder(ctx)
	s.view.detach()
	_ = b.states.Set(ctx, chatID, dialog.StatePosMenu, dialog.Payload{})
	s.view.render()
}

func (b *Bot) handleAccessRequest(ctx context.Context, chatID int64, msgID int, fromID int64, action string) {
	admin, _ := b.users.GetByTelegramID(ctx, fromID)
	if admin == nil || admin.Role != users.RoleAdmin || admin.Status != users.StatusApproved {
		return
	}

	parts := strings.SplitN(action, ":", 2)
	if len(parts) != 2 {
		return
	}
	tgID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return
	}

	switch parts[0] {
	case "approve":
		u, err := b.users.Approve(ctx, tgID, users.RoleCashier)
		if err != nil {
			b.editTextAndClear(chatID, msgID, "Не удалось подтвердить заявку.")
			return
		}
		b.editTextAndClear(chatID, msgID, fmt.Sprintf("Кассир %s подтверждён.", u.FullName))
		m := tgbotapi.NewMessage(tgID, "Вас подтвердили! Жмите «Терминал», чтобы начать продажу.")
		m.ReplyMarkup = cashierReplyKeyboard()
		b.send(m)
	case "reject":
		if err := b.users.Reject(ctx, tgID); err != nil {
			b.editTextAndClear(chatID, msgID, "Не удалось отклонить заявку.")
			return
		}
		b.editTextAndClear(chatID, msgID, "Заявка отклонена.")
		b.send(tgbotapi.NewMessage(tgID, "К сожалению, доступ к терминалу не подтверждён."))
	}
}

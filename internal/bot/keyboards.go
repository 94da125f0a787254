package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/pos-bot/internal/pos/cart"
	"github.com/Spok95/pos-bot/internal/pos/numpad"
)

func navKeyboard(back bool, cancel bool) tgbotapi.InlineKeyboardMarkup {
	row := []tgbotapi.InlineKeyboardButton{}
	if back {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", "nav:back"))
	}
	if cancel {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("✖️ Отменить", "nav:cancel"))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

// cartKeyboard — клавиатура под сообщением корзины: строки для выбора,
// «+/−/🗑» у выбранной строки, нумпад с режимами и действия заказа.
func cartKeyboard(rows []cart.Row, sel *cart.Selection, pad *numpad.Pad, editable, receipt bool) tgbotapi.InlineKeyboardMarkup {
	kb := [][]tgbotapi.InlineKeyboardButton{}

	if editable {
		for i, r := range rows {
			label := r.ItemName
			if r.BatchNo != "" {
				label = fmt.Sprintf("%s [%s]", r.ItemName, r.BatchNo)
			}
			if sel != nil && sel.ItemCode == r.ItemCode && sel.BatchNo == r.BatchNo {
				label = "☑️ " + label
			}
			kb = append(kb, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("cart:sel:%d", i)),
				tgbotapi.NewInlineKeyboardButtonData("➖", fmt.Sprintf("cart:dec:%d", i)),
				tgbotapi.NewInlineKeyboardButtonData("➕", fmt.Sprintf("cart:inc:%d", i)),
				tgbotapi.NewInlineKeyboardButtonData("🗑", fmt.Sprintf("cart:del:%d", i)),
			))
		}
		kb = append(kb, numpadRows(pad, sel)...)
	}

	if editable {
		kb = append(kb, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔍 Поиск", "pos:search"),
			tgbotapi.NewInlineKeyboardButtonData("🗂 Каталог", "pos:browse"),
		))
	}

	second := []tgbotapi.InlineKeyboardButton{}
	if editable {
		second = append(second,
			tgbotapi.NewInlineKeyboardButtonData("👤 Покупатель", "pos:customer"),
			tgbotapi.NewInlineKeyboardButtonData("✅ Провести", "pos:submit"),
		)
	}
	if receipt {
		second = append(second, tgbotapi.NewInlineKeyboardButtonData("🧾 Чек", "pos:receipt"))
	}
	second = append(second, tgbotapi.NewInlineKeyboardButtonData("🆕 Новый заказ", "pos:new"))
	kb = append(kb, second)

	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: kb}
}

// numpadRows — цифровая клавиатура с режимами. Активный режим помечается,
// в первом ряду виден накопленный буфер.
func numpadRows(pad *numpad.Pad, sel *cart.Selection) [][]tgbotapi.InlineKeyboardButton {
	modeLabel := func(mode, label string) string {
		if sel != nil && sel.Field != "" {
			if f, ok := cart.MapMode(mode); ok && f == sel.Field {
				return "🔘 " + label
			}
		}
		if pad.Disabled(mode) {
			return "· " + label
		}
		return label
	}

	buf := pad.Buffer()
	if buf == "" {
		buf = "_"
	}

	return [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(modeLabel(numpad.ModeQty, "Кол-во"), "np:qty"),
			tgbotapi.NewInlineKeyboardButtonData(modeLabel(numpad.ModeDisc, "Скидка"), "np:disc"),
			tgbotapi.NewInlineKeyboardButtonData(modeLabel(numpad.ModeRate, "Цена"), "np:rate"),
			tgbotapi.NewInlineKeyboardButtonData("["+buf+"]", "np:noop"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("7", "np:7"),
			tgbotapi.NewInlineKeyboardButtonData("8", "np:8"),
			tgbotapi.NewInlineKeyboardButtonData("9", "np:9"),
			tgbotapi.NewInlineKeyboardButtonData("⌫", "np:del"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("4", "np:4"),
			tgbotapi.NewInlineKeyboardButtonData("5", "np:5"),
			tgbotapi.NewInlineKeyboardButtonData("6", "np:6"),
			tgbotapi.NewInlineKeyboardButtonData("0", "np:0"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("1", "np:1"),
			tgbotapi.NewInlineKeyboardButtonData("2", "np:2"),
			tgbotapi.NewInlineKeyboardButtonData("3", "np:3"),
			tgbotapi.NewInlineKeyboardButtonData(".", "np:."),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("OK — применить", "np:ok"),
		),
	}
}

// cashierReplyKeyboard Нижняя панель (ReplyKeyboard) для кассира
func cashierReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton("Терминал")},
			{tgbotapi.NewKeyboardButton("Новый заказ")},
		},
	}
}

func adminReplyKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.ReplyKeyboardMarkup{
		ResizeKeyboard: true,
		Keyboard: [][]tgbotapi.KeyboardButton{
			{tgbotapi.NewKeyboardButton("Терминал")},
			{tgbotapi.NewKeyboardButton("Новый заказ")},
			{tgbotapi.NewKeyboardButton("Каталог")},
		},
	}
}

package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/pos-bot/internal/dialog"
	"github.com/Spok95/pos-bot/internal/domain/items"
	"github.com/Spok95/pos-bot/internal/domain/users"
)

func (b *Bot) showCatalogMenu(chatID int64, editMsgID *int) {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬇️ Выгрузить товары", "cat:export"),
			tgbotapi.NewInlineKeyboardButtonData("⬆️ Загрузить товары", "cat:import"),
		),
		navKeyboard(false, true).InlineKeyboard[0],
	)

	if editMsgID != nil {
		b.send(tgbotapi.NewEditMessageTextAndMarkup(chatID, *editMsgID, "Каталог — выберите действие", kb))
	} else {
		m := tgbotapi.NewMessage(chatID, "Каталог — выберите действие")
		m.ReplyMarkup = kb
		b.send(m)
	}
}

func (b *Bot) handleCatalogCallback(ctx context.Context, chatID int64, msgID int, fromID int64, action string) {
	u, _ := b.users.GetByTelegramID(ctx, fromID)
	if u == nil || u.Status != users.StatusApproved || u.Role != users.RoleAdmin {
		b.send(tgbotapi.NewMessage(chatID, "Доступ запрещён"))
		return
	}

	switch action {
	case "export":
		if err := b.handleCatalogExportExcel(ctx, chatID); err != nil {
			b.log.Error("catalog export failed", "err", err)
			b.editTextAndClear(chatID, msgID, "Не удалось выгрузить каталог.")
		}
	case "import":
		_ = b.states.Set(ctx, chatID, dialog.StateAdmCatalogImport, dialog.Payload{})
		b.editTextAndClear(chatID, msgID,
			"Пришлите .xlsx с колонками:\nitem_code | item_name | item_group | uom | rate | is_stock | has_serial | has_batch")
	}
}

// handleCatalogExportExcel выгружает активный каталог с ценами
// текущего прайс-листа одним листом.
func (b *Bot) handleCatalogExportExcel(ctx context.Context, chatID int64) error {
	list, err := b.items.List(ctx, b.pos.PriceList)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Каталог пуст."))
		return nil
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	headers := []string{"item_code", "item_name", "item_group", "uom", "rate", "qty", "is_stock", "has_serial", "has_batch"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for r, it := range list {
		values := []any{
			it.ItemCode, it.ItemName, it.ItemGroup, it.StockUOM,
			it.PriceListRate, it.ActualQty,
			boolCell(it.IsStockItem), boolCell(it.HasSerialNo), boolCell(it.HasBatchNo),
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return err
	}

	doc := tgbotapi.FileBytes{Name: "catalog.xlsx", Bytes: buf.Bytes()}
	msg := tgbotapi.NewDocument(chatID, doc)
	msg.Caption = fmt.Sprintf("Каталог: %d товаров, прайс-лист «%s»", len(list), b.pos.PriceList)
	b.send(msg)
	return nil
}

// handleCatalogImportExcel читает Excel с товарами и обновляет каталог:
// карточка через upsert, цена — в прайс-лист терминала.
// Пустая ячейка rate означает "оставить старую цену".
func (b *Bot) handleCatalogImportExcel(ctx context.Context, chatID int64, data []byte) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		b.send(tgbotapi.NewMessage(chatID, "Не удалось прочитать Excel-файл (повреждён или не .xlsx)."))
		return
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rows, err := f.GetRows(sheet)
	if err != nil || len(rows) < 2 {
		b.send(tgbotapi.NewMessage(chatID, "Файл не содержит данных (нет строк с товарами)."))
		return
	}

	header := rows[0]
	if len(header) < 5 {
		b.send(tgbotapi.NewMessage(chatID, "Некорректный формат файла: ожидается минимум 5 колонок (item_code ... rate)."))
		return
	}

	var (
		totalRows    int
		pricedCount  int
		skippedCount int
	)

	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) < 5 {
			skippedCount++
			continue
		}

		code := strings.TrimSpace(row[0])
		name := strings.TrimSpace(row[1])
		group := strings.TrimSpace(row[2])
		uom := strings.TrimSpace(row[3])
		rateStr := strings.TrimSpace(row[4])

		if code == "" || name == "" {
			skippedCount++
			continue
		}
		if uom == "" {
			uom = "шт"
		}

		it := items.Item{
			ItemCode:    code,
			ItemName:    name,
			ItemGroup:   group,
			StockUOM:    uom,
			IsStockItem: cellBool(row, 6, true),
			HasSerialNo: cellBool(row, 7, false),
			HasBatchNo:  cellBool(row, 8, false),
		}
		if err := b.items.Upsert(ctx, it); err != nil {
			b.send(tgbotapi.NewMessage(chatID,
				fmt.Sprintf("Ошибка сохранения товара в строке %d (%s): %v", i+1, code, err)))
			return
		}

		if rateStr != "" {
			rate, err := strconv.ParseFloat(strings.ReplaceAll(rateStr, ",", "."), 64)
			if err != nil || rate < 0 {
				b.send(tgbotapi.NewMessage(chatID,
					fmt.Sprintf("Ошибка в строке %d: некорректная цена (%q). Используйте неотрицательное число.", i+1, rateStr)))
				return
			}
			if err := b.items.SetPrice(ctx, b.pos.PriceList, code, rate); err != nil {
				b.send(tgbotapi.NewMessage(chatID,
					fmt.Sprintf("Ошибка сохранения цены в строке %d (%s): %v", i+1, code, err)))
				return
			}
			pricedCount++
		}
		totalRows++
	}

	// каталог изменился — мемоизация поиска больше не валидна
	b.resetCatalogCaches()

	msg := fmt.Sprintf(
		"Каталог обновлён из файла.\nСтрок обработано: %d\nЦен обновлено: %d\nПропущено: %d",
		totalRows, pricedCount, skippedCount,
	)
	b.send(tgbotapi.NewMessage(chatID, msg))

	_ = b.states.Set(ctx, chatID, dialog.StateAdmCatalogMenu, dialog.Payload{})
	b.showCatalogMenu(chatID, nil)
}

func (b *Bot) resetCatalogCaches() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.sessions {
		s.browser.ResetCatalog("")
	}
}

func cellBool(row []string, idx int, def bool) bool {
	if idx >= len(row) {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(row[idx])) {
	case "1", "true", "yes", "да":
		return true
	case "0", "false", "no", "нет":
		return false
	}
	return def
}

func boolCell(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

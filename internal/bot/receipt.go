package bot

import (
	"bytes"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/pos-bot/internal/pos/cart"
)

// sendReceipt формирует Excel-чек по текущему заказу терминала и
// отправляет его файлом в чат.
func (b *Bot) sendReceipt(chatID int64) error {
	s := b.posSession(chatID)
	s.ctrl.Wait()
	d := s.ctrl.Document()

	if len(d.Lines) == 0 {
		b.send(tgbotapi.NewMessage(chatID, "Чек пуст: в заказе нет позиций."))
		return nil
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	rowIdx := 1

	title := fmt.Sprintf("Чек %s — %s", d.Name, d.TransactionDate.Format("02.01.2006 15:04"))
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), title)
	_ = f.MergeCell(sheet, fmt.Sprintf("A%d", rowIdx), fmt.Sprintf("E%d", rowIdx))
	rowIdx++

	if d.Customer != "" {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), "Покупатель: "+d.Customer)
		rowIdx++
	}
	status := "черновик"
	if d.IsSubmitted() {
		status = "проведён"
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), "Статус: "+status)
	rowIdx += 2

	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), "Товар")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", rowIdx), "Кол-во")
	_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", rowIdx), "Цена")
	_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", rowIdx), "Скидка %")
	_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", rowIdx), "Сумма")
	rowIdx++

	for _, l := range d.Lines {
		name := l.ItemName
		if l.BatchNo != "" {
			name = fmt.Sprintf("%s (партия %s)", l.ItemName, l.BatchNo)
		}
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), name)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", rowIdx), l.Qty)
		_ = f.SetCellValue(sheet, fmt.Sprintf("C%d", rowIdx), l.Rate)
		_ = f.SetCellValue(sheet, fmt.Sprintf("D%d", rowIdx), l.DiscountPercentage)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", rowIdx), l.Amount)
		rowIdx++

		if l.SerialNo != "" {
			_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), "  серийники: "+l.SerialNo)
			rowIdx++
		}
	}
	rowIdx++

	for _, t := range d.Taxes {
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), t.Description)
		_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", rowIdx), t.Amount)
		rowIdx++
	}
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", rowIdx), "Итого")
	_ = f.SetCellValue(sheet, fmt.Sprintf("E%d", rowIdx), d.RoundedTotal)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return err
	}

	doc := tgbotapi.FileBytes{
		Name:  fmt.Sprintf("%s.xlsx", d.Name),
		Bytes: buf.Bytes(),
	}
	msg := tgbotapi.NewDocument(chatID, doc)
	msg.Caption = fmt.Sprintf("Чек %s: %s", d.Name, cart.FormatMoney(d.RoundedTotal, d.Currency))
	b.send(msg)
	return nil
}

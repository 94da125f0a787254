package numpad

import (
	"strconv"
	"strings"
)

// Кнопки клавиатуры терминала. Режимные кнопки не набирают цифры,
// а переключают активное поле (обрабатывает вызывающий код).
const (
	ButtonDelete = "del"

	ModeQty   = "qty"
	ModeDisc  = "disc"
	ModeRate  = "rate"
	ModeOrder = "order"
)

// Event — результат нажатия: накопленное значение буфера либо режимная кнопка.
type Event struct {
	Value  float64
	IsMode bool
	Mode   string // заполнено только для режимных кнопок
}

// Pad — буфер цифрового ввода. Сам по себе ничего не знает про корзину:
// наверх уходят только сырые события.
type Pad struct {
	buf      string
	disabled map[string]bool
}

func New() *Pad {
	return &Pad{disabled: map[string]bool{}}
}

// SetDisabled выключает отдельные кнопки (например, Disc до выбора строки).
func (p *Pad) SetDisabled(buttons ...string) {
	p.disabled = map[string]bool{}
	for _, b := range buttons {
		p.disabled[b] = true
	}
}

func (p *Pad) Disabled(button string) bool { return p.disabled[button] }

// Press обрабатывает нажатие. Для выключенной кнопки события нет.
func (p *Pad) Press(button string) (Event, bool) {
	if p.disabled[button] {
		return Event{}, false
	}

	switch button {
	case ModeQty, ModeDisc, ModeRate, ModeOrder:
		p.buf = ""
		return Event{IsMode: true, Mode: button}, true
	case ButtonDelete:
		if p.buf != "" {
			p.buf = p.buf[:len(p.buf)-1]
		}
		return Event{Value: p.Value()}, true
	}

	if !isDigitOrDot(button) {
		// кнопки вне раскладки не существуют, ввод заранее валиден
		return Event{}, false
	}
	p.buf += button
	return Event{Value: p.Value()}, true
}

// Value — числовое значение буфера; пустой или невалидный буфер даёт 0.
func (p *Pad) Value() float64 {
	v, err := strconv.ParseFloat(p.buf, 64)
	if err != nil {
		return 0
	}
	return v
}

func (p *Pad) Buffer() string { return p.buf }

func (p *Pad) Reset() { p.buf = "" }

func isDigitOrDot(s string) bool {
	if len(s) != 1 {
		return false
	}
	return s == "." || strings.ContainsAny(s, "0123456789")
}

package numpad

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPressAccumulatesDigits(t *testing.T) {
	p := New()

	ev, ok := p.Press("1")
	require.True(t, ok)
	assert.Equal(t, 1.0, ev.Value)

	ev, ok = p.Press("5")
	require.True(t, ok)
	assert.Equal(t, 15.0, ev.Value)

	ev, ok = p.Press(".")
	require.True(t, ok)
	assert.Equal(t, 15.0, ev.Value)

	ev, ok = p.Press("5")
	require.True(t, ok)
	assert.Equal(t, 15.5, ev.Value)
	assert.Equal(t, "15.5", p.Buffer())
}

func TestDeleteRemovesLastChar(t *testing.T) {
	p := New()
	p.Press("4")
	p.Press("2")

	ev, ok := p.Press(ButtonDelete)
	require.True(t, ok)
	assert.Equal(t, 4.0, ev.Value)

	p.Press(ButtonDelete)
	ev, ok = p.Press(ButtonDelete) // удаление из пустого буфера не падает
	require.True(t, ok)
	assert.Equal(t, 0.0, ev.Value)
}

func TestModeButtonsResetBuffer(t *testing.T) {
	p := New()
	p.Press("9")
	p.Press("9")

	ev, ok := p.Press(ModeDisc)
	require.True(t, ok)
	assert.True(t, ev.IsMode)
	assert.Equal(t, ModeDisc, ev.Mode)
	assert.Equal(t, "", p.Buffer())
}

func TestDisabledButtonNoEvent(t *testing.T) {
	p := New()
	p.SetDisabled(ModeRate, "7")

	_, ok := p.Press(ModeRate)
	assert.False(t, ok)
	_, ok = p.Press("7")
	assert.False(t, ok)

	// остальные кнопки работают
	_, ok = p.Press("8")
	assert.True(t, ok)
}

func TestInvalidBufferParsesToZero(t *testing.T) {
	p := New()
	p.Press(".")
	assert.Equal(t, 0.0, p.Value())
}

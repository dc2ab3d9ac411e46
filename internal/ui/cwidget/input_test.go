package cwidget

import (
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntInput(t *testing.T) {
	test.NewTempApp(t)

	var got int
	in := NewIntInput("FPS", "Enter integer", 30, func(v int) { got = v })

	in.SetText("15")
	assert.Equal(t, 15, got)
	assert.Equal(t, "FPS: 15", in.labelWidget.Text)
	assert.True(t, in.errorWidget.Hidden)

	in.SetText("0")
	assert.Equal(t, 15, got)
	assert.False(t, in.errorWidget.Hidden)

	in.SetText("")
	assert.Equal(t, 30, got)
}

func TestFloatInput(t *testing.T) {
	test.NewTempApp(t)

	var got float64
	in := NewFloatInput("Min score", "0.0 - 1.0", 0.5, 0, 1, func(v float64) { got = v })
	require.Equal(t, "Min score: 0.50", in.labelWidget.Text)

	in.SetText("0.75")
	assert.Equal(t, 0.75, got)
	assert.Equal(t, "Min score: 0.75", in.labelWidget.Text)

	in.SetText("1.5")
	assert.Equal(t, 0.75, got)
	assert.Equal(t, "must be between 0.00 and 1.00", in.errorWidget.Text)

	in.SetText("abc")
	assert.Equal(t, "not a number", in.errorWidget.Text)
}

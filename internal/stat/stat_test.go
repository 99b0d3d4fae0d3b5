package stat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlock_AddAndDrain(t *testing.T) {
	b := New()
	b.AddRX(10)
	b.AddRX(5)
	b.AddTX(3)
	b.AddError()

	page := b.Drain()
	require.EqualValues(t, 2, page.RX)
	require.EqualValues(t, 15, page.RXBytes)
	require.EqualValues(t, 1, page.TX)
	require.EqualValues(t, 3, page.TXBytes)
	require.EqualValues(t, 1, page.Errors)
}

func TestBlock_DrainResetsActivePage(t *testing.T) {
	b := New()
	b.AddRX(1)
	b.Drain()

	page := b.Drain()
	require.Zero(t, page.RX)
}

func TestBlock_TotalAccumulatesAcrossGenerations(t *testing.T) {
	b := New()
	b.AddRX(1)
	b.Drain()
	b.AddRX(1)

	require.EqualValues(t, 2, b.Total().RX)
}

package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDCap_NeedProcess(t *testing.T) {
	cases := []struct {
		d    DCap
		want bool
	}{
		{0, false},
		{Process, true},
		{Process | PollIn, true},
		{Process | Suspend, false},
		{Process | Suspend | PollIn, false},
		{Suspend, false},
		{PollIn | PollOut, false},
		{Process | SuspendPermanent, true}, // SuspendPermanent alone doesn't mask NeedProcess per the formula
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, c.d.NeedProcess(), "dcaps=%s", c.d)
	}
}

func TestDCap_Suspended(t *testing.T) {
	assert.True(t, (Suspend).Suspended())
	assert.True(t, (SuspendPermanent).Suspended())
	assert.False(t, (Process | PollIn).Suspended())
}

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher(t *testing.T) {
	d := NewDispatcher()

	var got []any
	remove1 := d.Connect("sig", func(p any) { got = append(got, p) })
	d.Connect("sig", func(p any) { got = append(got, "second") })
	d.Connect("other", func(p any) { got = append(got, "other") })

	assert.Equal(t, 2, d.Send("sig", 1))
	assert.Equal(t, []any{1, "second"}, got)

	remove1()
	remove1()
	assert.Equal(t, 1, d.Connected("sig"))

	got = nil
	assert.Equal(t, 1, d.Send("sig", 2))
	assert.Equal(t, []any{"second"}, got)

	assert.Equal(t, 0, d.Send("none", nil))
}

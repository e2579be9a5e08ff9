package httpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMustCloseAfter(t *testing.T) {
	cases := []struct {
		status int
		want   bool
	}{
		{200, false},
		{204, false},
		{301, false},
		{404, false},
		{405, false},
		{400, true},
		{413, true},
		{500, true},
		{502, true},
		{507, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, mustCloseAfter(c.status), "status %d", c.status)
	}
}

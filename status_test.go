package ytrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusOK(t *testing.T) {
	cases := []struct {
		name string
		s    Status
		want bool
	}{
		{"ok zero value", Status{}, true},
		{"ok via NewStatus", NewStatus(0, ""), true},
		{"framework error", NewCodeStatus(Timeout), false},
		{"func ret nonzero", NewStatus(1, "bad input"), false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.s.OK(), "TestStatusOK(%s)", c.name)
	}
}

func TestCodeString(t *testing.T) {
	cases := []struct {
		code Code
		want string
	}{
		{OK, "OK"},
		{Timeout, "TIMEOUT"},
		{NotFound, "NOT_FOUND"},
		{Code(999), "CODE(999)"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.code.String(), "TestCodeString(%d)", c.code)
	}
}

package telegram

import "testing"

func TestCommandName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/new", "new"},
		{"/NEW", "new"},
		{"/reset@SeeleBot", "reset"},
		{"/help extra args", "help"},
		{"hello there", ""},
		{"not /a command", ""},
		{"/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := commandName(tc.in); got != tc.want {
			t.Errorf("commandName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

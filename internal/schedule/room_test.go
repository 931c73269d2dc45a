package schedule

import "testing"

func TestCleanRoom(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{name: "plain", raw: "C1.3.122", want: "C1.3.122", ok: true},
		{name: "trailing wing letter", raw: "C1.1.256P", want: "C1.1.256", ok: true},
		{name: "lowercase", raw: "c1.1.256p", want: "C1.1.256", ok: true},
		{name: "letter-only room kept", raw: "Gym", want: "GYM", ok: true},
		{name: "online sentinel", raw: "ONLINE", ok: false},
		{name: "online mixed case", raw: "online", ok: false},
		{name: "parenthetical cut", raw: "C1.2.100 (lecture hall)", want: "C1.2.100", ok: true},
		{name: "line break cut", raw: "C1.2.100\nsecond floor", want: "C1.2.100", ok: true},
		{name: "whitespace only", raw: "   ", ok: false},
		{name: "empty", raw: "", ok: false},
		{name: "single letter survives", raw: "A", want: "A", ok: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CleanRoom(tt.raw)
			if ok != tt.ok {
				t.Fatalf("CleanRoom(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Fatalf("CleanRoom(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

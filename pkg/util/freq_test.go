package util

import "testing"

func TestHzToString(t *testing.T) {
	tests := []struct {
		name string
		hz   float64
		want string
	}{
		{"default rate", 89286, "89.286 kHz"},
		{"max tuning", 45e6, "45 MHz"},
		{"zero", 0, "0 Hz"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HzToString(tt.hz); got != tt.want {
				t.Errorf("HzToString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFramesToString(t *testing.T) {
	if got := FramesToString(1234567); got != "1,234,567" {
		t.Errorf("FramesToString() = %q", got)
	}
}

package vfz

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in       string
		want     Format
		wantSize int
		wantErr  bool
	}{
		{"CF32", FormatCF32, 4, false},
		{"CS32", FormatCS32, 4, false},
		{"CS16", FormatCS16, 2, false},
		{"CS8", FormatCS8, 1, false},
		{"CF64", 0, 0, true},
		{"cf32", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidFormat) {
					t.Errorf("ParseFormat() error = %v, want %v", err, ErrInvalidFormat)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want || got.String() != tt.in || !got.Valid() {
				t.Errorf("ParseFormat() = %v, want %v", got, tt.want)
			}
			if got.ElementSize() != tt.wantSize {
				t.Errorf("ElementSize() = %d, want %d", got.ElementSize(), tt.wantSize)
			}
		})
	}
}

func TestFormatInvalid(t *testing.T) {
	f := Format(9)
	if f.Valid() {
		t.Error("Format(9) is valid")
	}
	if f.String() != "Format(9)" {
		t.Errorf("String() = %q", f.String())
	}
	if _, err := NewBuffer(f, 1); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("NewBuffer() error = %v, want %v", err, ErrUnsupportedFormat)
	}
}

package cmd

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"
)

func TestReadConfirmation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"typed", "12.5\n", "12.5", nil},
		{"padded", "  1.0 \r\n", "1.0", nil},
		{"no newline before eof", "0.5", "0.5", nil},
		{"empty line", "\n", "", errNoConfirmation},
		{"eof", "", "", errNoConfirmation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readConfirmation(strings.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("confirmation = %q, want %q", got, tt.want)
			}
		})
	}

	boom := errors.New("tty gone")
	if _, err := readConfirmation(iotest.ErrReader(boom)); !errors.Is(err, boom) {
		t.Errorf("read error = %v, want wrapped %v", err, boom)
	}
}

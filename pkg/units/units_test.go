package units

import (
	"math/big"
	"strings"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  string
	}{
		{"whole ether", "1", 18, "1000000000000000000", ""},
		{"quarter of supply", "250000000", 18, "250000000000000000000000000", ""},
		{"fraction", "1.5", 6, "1500000", ""},
		{"underscores", "1_000", 0, "1000", ""},
		{"zero decimals", "42", 0, "42", ""},
		{"zero", "0", 18, "0", ""},
		{"too precise", "0.0000001", 6, "", "decimal places"},
		{"negative", "-1", 18, "", "negative"},
		{"garbage", "abc", 18, "", "parsing amount"},
		{"empty", "  ", 18, "", "empty"},
		{"decimals too large", "1", 78, "", "out of range"},
		{"decimals negative", "1", -1, "", "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.amount, tt.decimals)
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, got)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseEther(t *testing.T) {
	got, err := ParseEther("2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("2000000000000000000", 10)
	if got.Cmp(want) != 0 {
		t.Errorf("ParseEther(2) = %s, want %s", got, want)
	}
}

func TestFormatUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := FormatUnits(v, 18); got != "1.5" {
		t.Errorf("FormatUnits() = %q, want 1.5", got)
	}
	if got := FormatUnits(nil, 18); got != "0" {
		t.Errorf("FormatUnits(nil) = %q, want 0", got)
	}
}

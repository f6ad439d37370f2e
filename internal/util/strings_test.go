package util

import (
	"reflect"
	"testing"
)

func TestSplitCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"empty string", "", nil},
		{"single value", "customers", []string{"customers"}},
		{"multiple values", "customers,orders,invoices", []string{"customers", "orders", "invoices"}},
		{"with whitespace", " customers , orders ", []string{"customers", "orders"}},
		{"trailing comma", "customers,orders,", []string{"customers", "orders"}},
		{"only commas", ",,,", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitCSV(tt.input); !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("SplitCSV(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

package metadata

import (
	"reflect"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"pairs", "DocType~My Doc Type#LookupId~13", map[string]string{"DocType": "My Doc Type", "LookupId": "13"}},
		{"malformed skipped", "A~1#B#C~2~3", map[string]string{"A": "1"}},
		{"duplicate wins", "A~1#A~2", map[string]string{"A": "2"}},
		{"no trimming", " A ~ 1 ", map[string]string{" A ": " 1 "}},
		{"empty key kept", "~v", map[string]string{"": "v"}},
		{"empty value kept", "k~", map[string]string{"k": ""}},
		{"trailing separator", "A~1#", map[string]string{"A": "1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.in)
			if got == nil {
				t.Fatalf("Decode(%q) returned nil", tt.in)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Decode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	fields := map[string]string{"LookupId": "13", "DocType": "Report"}
	raw := Encode(fields)
	if raw != "DocType~Report#LookupId~13" {
		t.Fatalf("Encode = %q", raw)
	}
	if !reflect.DeepEqual(Decode(raw), fields) {
		t.Fatalf("Decode(Encode) mismatch")
	}
	if Encode(nil) != "" {
		t.Fatalf("Encode(nil) should be empty")
	}
}

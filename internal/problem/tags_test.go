package problem

import (
	"reflect"
	"testing"
)

func TestParseTags(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"component:network", []string{"component:network"}},
		{"component:network , scope:availability", []string{"component:network", "scope:availability"}},
		{"  a:b,c:d  ,e:f", []string{"a:b", "c:d", "e:f"}},
		{"a:b,,a:b, ", []string{"a:b"}},
		{"", []string{}},
		{"tag with space:v 1 , x:y", []string{"tag with space:v 1", "x:y"}},
	}

	for _, tt := range tests {
		got := ParseTags(tt.expr)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseTags(%q) = %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestFormatTag(t *testing.T) {
	if got := FormatTag("component", "network"); got != "component:network" {
		t.Errorf("FormatTag = %q", got)
	}
	if got := FormatTag("solo", ""); got != "solo:" {
		t.Errorf("FormatTag with empty value = %q, want %q", got, "solo:")
	}
}

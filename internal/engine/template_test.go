package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestInterpolate(t *testing.T) {
	lookup := MapLookup(map[string]string{
		"Research":  "Plants convert light into chemical energy.",
		"step two":  "second",
		"with-dash": "dashed",
	})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "no template",
			template: "Plain text",
			expected: "Plain text",
		},
		{
			name:     "single reference",
			template: "Summarize: {{Research}}",
			expected: "Summarize: Plants convert light into chemical energy.",
		},
		{
			name:     "spaces inside braces",
			template: "{{ Research }}",
			expected: "Plants convert light into chemical energy.",
		},
		{
			name:     "name with spaces",
			template: "[{{step two}}]",
			expected: "[second]",
		},
		{
			name:     "multiple references",
			template: "{{with-dash}} and {{step two}}",
			expected: "dashed and second",
		},
		{
			name:     "unclosed braces left as is",
			template: "value {{ Research",
			expected: "value {{ Research",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Interpolate(tt.template, lookup)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestInterpolate_UnknownReference(t *testing.T) {
	lookup := MapLookup(map[string]string{"A": "a"})

	_, err := Interpolate("{{A}} then {{Missing}}", lookup)
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
	if got := err.Error(); got != "unknown reference: Missing" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestInterpolate_ValueNotReinterpolated(t *testing.T) {
	// вывод шага может содержать фигурные скобки — повторно не разворачиваем
	lookup := MapLookup(map[string]string{"A": "{{B}}"})

	result, err := Interpolate("x {{A}}", lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "x {{B}}" {
		t.Errorf("expected %q, got %q", "x {{B}}", result)
	}
}

func TestReferences(t *testing.T) {
	got := References("{{A}} {{ B }} text {{A}}")
	want := []string{"A", "B", "A"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if refs := References("no refs"); refs != nil {
		t.Errorf("expected nil, got %v", refs)
	}
}

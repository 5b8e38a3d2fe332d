// Copyright (c) Microsoft. All rights reserved.

package dialogs

import "testing"

func TestRecognizeChoice(t *testing.T) {
	choices := []string{"Red", "Green", "Blue"}
	tests := []struct {
		text  string
		ok    bool
		value string
		index int
	}{
		{"green", true, "Green", 1},
		{"  BLUE. ", true, "Blue", 2},
		{"1", true, "Red", 0},
		{"4", false, "", 0},
		{"purple", false, "", 0},
		{"", false, "", 0},
	}
	for _, tt := range tests {
		got := recognizeChoice(tt.text, choices)
		if got.Succeeded != tt.ok {
			t.Errorf("recognizeChoice(%q) succeeded = %v, want %v", tt.text, got.Succeeded, tt.ok)
			continue
		}
		if tt.ok && (got.Value.Value != tt.value || got.Value.Index != tt.index) {
			t.Errorf("recognizeChoice(%q) = %+v, want %s/%d", tt.text, got.Value, tt.value, tt.index)
		}
	}
}

func TestInlineChoices(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{[]string{"a"}, "(1) a"},
		{[]string{"a", "b"}, "(1) a or (2) b"},
		{[]string{"red", "green", "blue"}, "(1) red, (2) green or (3) blue"},
	}
	for _, tt := range tests {
		if got := inlineChoices(tt.in); got != tt.want {
			t.Errorf("inlineChoices(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNumberPattern(t *testing.T) {
	tests := map[string]string{
		"I am 36":       "36",
		"about -2.5 kg": "-2.5",
		"3,75":          "3,75",
		"none":          "",
	}
	for in, want := range tests {
		if got := numberPattern.FindString(in); got != want {
			t.Errorf("numberPattern.FindString(%q) = %q, want %q", in, got, want)
		}
	}
}

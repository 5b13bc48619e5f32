package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/rfidvision/rfidlog/internal/client/api"
)

func scannerOf(input string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(input))
}

func TestPromptBoxItems(t *testing.T) {
	input := "Screw\nM4 x 20\n12\nGlove\n\nabc\n-1\n3\n\n"
	var out bytes.Buffer

	items := promptBoxItems(scannerOf(input), &out)

	want := []api.BoxItemInput{
		{Name: "Screw", Description: "M4 x 20", Quantity: 12},
		{Name: "Glove", Quantity: 3},
	}
	if len(items) != len(want) {
		t.Fatalf("got %d items; want %d: %+v", len(items), len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d = %+v; want %+v", i, items[i], want[i])
		}
	}
	if got := strings.Count(out.String(), "Quantity must be"); got != 2 {
		t.Errorf("expected 2 quantity complaints, got %d", got)
	}
}

func TestPromptBoxItems_EOF(t *testing.T) {
	var out bytes.Buffer
	items := promptBoxItems(scannerOf("Screw\n"), &out)
	if len(items) != 0 {
		t.Errorf("expected no items on truncated input, got %+v", items)
	}
}

func TestConfirm(t *testing.T) {
	cases := map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "": false}
	for input, want := range cases {
		var out bytes.Buffer
		if got := confirm(scannerOf(input), &out, "Create?"); got != want {
			t.Errorf("confirm(%q) = %v; want %v", input, got, want)
		}
		if !strings.Contains(out.String(), "Create? [y/N]") {
			t.Errorf("prompt not printed: %q", out.String())
		}
	}
}

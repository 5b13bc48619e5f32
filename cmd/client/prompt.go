package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rfidvision/rfidlog/internal/client/api"
)

// promptLine prints label and returns the next trimmed input line. ok is
// false at end of input.
func promptLine(sc *bufio.Scanner, out io.Writer, label string) (line string, ok bool) {
	fmt.Fprint(out, label)
	if !sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(sc.Text()), true
}

// confirm asks a yes/no question; anything but y/yes is no.
func confirm(sc *bufio.Scanner, out io.Writer, question string) bool {
	answer, ok := promptLine(sc, out, question+" [y/N]: ")
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// promptBoxItems reads item lines for a new box until an empty name.
func promptBoxItems(sc *bufio.Scanner, out io.Writer) []api.BoxItemInput {
	var items []api.BoxItemInput
	for {
		name, ok := promptLine(sc, out, "Item name (empty to finish): ")
		if !ok || name == "" {
			return items
		}
		desc, _ := promptLine(sc, out, "Description: ")

		qty := -1
		for qty < 0 {
			raw, ok := promptLine(sc, out, "Quantity: ")
			if !ok {
				return items
			}
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				fmt.Fprintln(out, "Quantity must be a non-negative number")
				continue
			}
			qty = n
		}
		items = append(items, api.BoxItemInput{Name: name, Description: desc, Quantity: qty})
	}
}

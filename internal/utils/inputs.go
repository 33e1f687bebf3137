package utils

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// PromptYesNo asks a y/n question on stdin/stdout. EOF counts as no.
func PromptYesNo(prompt string) bool {
	return PromptYesNoWithReader(prompt, os.Stdin, os.Stdout)
}

// PromptYesNoWithReader is the injectable form used by tests and by
// commands that carry their own IO. It reasks until it gets a clear
// answer or the input ends.
func PromptYesNoWithReader(prompt string, reader io.Reader, writer io.Writer) bool {
	scanner := bufio.NewScanner(reader)
	for {
		_, _ = fmt.Fprintf(writer, "%s (y/n): ", prompt)
		if !scanner.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		_, _ = fmt.Fprintln(writer, "Please answer y or n.")
	}
}

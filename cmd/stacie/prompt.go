package main

import (
	"bufio"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/stacie-auth/stacie/internal/codec"
)

// readPassword reads a password from stdin without echoing it to the
// terminal, falling back to a plain line read when stdin is not a TTY (e.g.
// piped input in scripts and tests).
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pwBytes, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pwBytes), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return trimNewline(line), nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// decodeSalt parses a base64url-encoded salt flag, returning nil if empty
// (so callers fall back to the username-derived default salt).
func decodeSalt(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return codec.Base64URLDecode(s)
}

// cmd/hashpassword/main.go печатает bcrypt хэш для OPERATOR_PASSWORD_HASH.
// Пароль читается из первой строки stdin:
//
//	echo -n 's3cret' | go run ./cmd/hashpassword
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"quotebot/pkg/hash"
)

func main() {
	cost := flag.Int("cost", 0, "bcrypt cost, 0 = default")
	flag.Parse()

	if err := run(os.Stdin, os.Stdout, *cost); err != nil {
		fmt.Fprintf(os.Stderr, "hashpassword: %v\n", err)
		os.Exit(1)
	}
}

func run(in io.Reader, out io.Writer, cost int) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return fmt.Errorf("read password: %w", err)
	}

	h, err := hash.HashPassword(strings.TrimRight(line, "\r\n"), cost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "OPERATOR_PASSWORD_HASH=%s\n", h)
	return err
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const ttyPath = "/dev/tty"

// ttyConfirm asks on the controlling terminal. stdin and stdout are left
// alone because the MCP stdio transport owns them. Without a terminal every
// request is denied.
func ttyConfirm(ctx context.Context, question string) (bool, error) {
	tty, err := os.OpenFile(ttyPath, os.O_RDWR, 0)
	if err != nil {
		logger.Warn("no terminal for confirmation, denying", "err", err)
		return false, nil
	}
	defer tty.Close()
	if !term.IsTerminal(int(tty.Fd())) {
		logger.Warn("confirmation device is not a terminal, denying", "path", ttyPath)
		return false, nil
	}
	return promptYesNo(ctx, tty, tty, question)
}

// promptYesNo writes question to w and reads one answer line from r. A
// cancelled ctx counts as "no".
func promptYesNo(ctx context.Context, r io.Reader, w io.Writer, question string) (bool, error) {
	fmt.Fprintf(w, "\n%s\nType 'yes' to allow: ", question)

	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(r).ReadString('\n')
		answer <- line
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(w)
		return false, ctx.Err()
	case line := <-answer:
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "yes", "y":
			return true, nil
		}
		return false, nil
	}
}

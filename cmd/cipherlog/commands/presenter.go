package commands

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"cipherlog/internal/domain"
)

const reprintBanner = "--- earlier messages arrived, transcript follows ---"

// terminal prints each transcript line once unless a late arrival forces a
// reprint.
type terminal struct {
	mu   sync.Mutex
	out  io.Writer
	errs io.Writer
	seen map[string]struct{}
}

func newTerminal(out, errs io.Writer) *terminal {
	return &terminal{out: out, errs: errs, seen: make(map[string]struct{})}
}

// Render prints lines not shown yet. When an unseen line sorts before one
// already printed, the whole transcript is printed again so the screen
// keeps timestamp order.
func (t *terminal) Render(lines []domain.Line) {
	t.mu.Lock()
	defer t.mu.Unlock()

	firstUnseen := -1
	reorder := false
	for i, l := range lines {
		_, seen := t.seen[l.ID]
		switch {
		case !seen && firstUnseen < 0:
			firstUnseen = i
		case seen && firstUnseen >= 0:
			reorder = true
		}
	}
	if firstUnseen < 0 {
		return
	}

	from := firstUnseen
	if reorder {
		fmt.Fprintln(t.out, reprintBanner)
		from = 0
	}
	for _, l := range lines[from:] {
		t.seen[l.ID] = struct{}{}
		fmt.Fprintln(t.out, formatLine(l))
	}
}

func (t *terminal) Notify(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.errs, "! %s\n", describe(err))
}

func formatLine(l domain.Line) string {
	who := string(l.Author)
	if l.IsSelf {
		who += " (you)"
	}
	return fmt.Sprintf("[%s] %s: %s", l.Timestamp.Local().Format("15:04:05"), who, l.Text)
}

func describe(err error) string {
	var ban *domain.BanError
	if errors.As(err, &ban) {
		return fmt.Sprintf("access denied until %s: %s",
			ban.Record.ExpiresAt.Local().Format("2006-01-02 15:04"), ban.Record.Reason)
	}
	return err.Error()
}

package console

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// History keeps the most recent commands and appends every new one to a file, so the next session
// starts with them.
type History struct {
	mu      sync.Mutex
	path    string
	limit   int
	entries []string
}

// LoadHistory reads the last limit lines of path. A missing file is an empty history. An empty
// path keeps the history in memory only.
func LoadHistory(path string, limit int) (*History, error) {
	h := &History{path: path, limit: limit}
	if path == "" {
		return h, nil
	}
	//nolint:gosec
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open history")
	}
	//nolint:errcheck
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		h.push(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read history")
	}
	return h, nil
}

func (h *History) push(line string) {
	h.entries = append(h.entries, line)
	if h.limit > 0 && len(h.entries) > h.limit {
		h.entries = append([]string(nil), h.entries[len(h.entries)-h.limit:]...)
	}
}

// Append records a command. Blank lines are ignored.
func (h *History) Append(line string) (err error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(line)
	if h.path == "" {
		return nil
	}
	//nolint:gosec
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "failed to open history")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = f.WriteString(line + "\n")
	return err
}

// Entries returns the remembered commands, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

package pool

import (
	"bufio"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// FileStore manages the plain-text backing list of pool addresses: one
// address per line, `#` comments and blank lines ignored but preserved
// on rewrite. The file is where operators append new capacity; the
// database is where usage state lives. Consumed addresses are removed
// from the file so they are never re-imported.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string {
	return f.path
}

// Load returns every address in the file, in order. A missing file is
// created empty so the watcher has something to watch.
func (f *FileStore) Load() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "open address file")
	}
	defer file.Close()

	var addresses []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read address file")
	}
	return addresses, nil
}

// Append adds addresses to the end of the file.
func (f *FileStore) Append(addresses []string) error {
	if len(addresses) == 0 {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open address file")
	}
	defer file.Close()

	for _, addr := range addresses {
		if _, err := file.WriteString(addr + "\n"); err != nil {
			return errors.Wrap(err, "append address")
		}
	}
	return nil
}

// Remove rewrites the file without the given address. Comments and
// blank lines stay in place.
func (f *FileStore) Remove(address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "read address file")
	}
	if len(data) == 0 {
		return nil
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || trimmed != address {
			kept = append(kept, line)
		}
	}

	var sb strings.Builder
	for _, line := range kept {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if err := os.WriteFile(f.path, []byte(sb.String()), 0o644); err != nil {
		return errors.Wrap(err, "rewrite address file")
	}
	return nil
}

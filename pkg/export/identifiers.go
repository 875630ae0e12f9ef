package export

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// WriteIdentifiers writes one identifier per line to path, replacing the file.
func WriteIdentifiers(fs afero.Fs, path string, ids []string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	var b bytes.Buffer
	for _, id := range ids {
		b.WriteString(id)
		b.WriteByte('\n')
	}
	if err := afero.WriteFile(fs, path, b.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write identifiers to %s: %w", path, err)
	}
	return nil
}

// ReadIdentifiers reads an identifier list. Blank lines and lines starting
// with # are skipped, and repeated identifiers are kept once in first-seen
// order.
func ReadIdentifiers(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open identifier list: %w", err)
	}
	defer f.Close()

	var ids []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read identifier list %s: %w", path, err)
	}
	return ids, nil
}

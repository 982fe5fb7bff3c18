package idlist

import (
	"bufio"
	"bytes"
	"fmt"
)

// hashedIDLength is the fixed width of a segment member id (8 hex chars of
// sha256). Any other width in the stream means the byte ranges got out of
// sync and the whole list can no longer be trusted.
const hashedIDLength = 8

// Apply ingests one fetched chunk of `[+-]<hash>` delta lines into the list.
//
// A malformed line poisons the entire list: the caller must drop it from
// the registry and let the next manifest rebuild it from offset zero.
// Returning an error (rather than skipping the line) is deliberate; a bad
// line means the resume offset no longer points at a line boundary.
func (l *List) Apply(chunk []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(chunk))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if len(line) != hashedIDLength+1 {
			return fmt.Errorf("id list %s: unexpected line length %d", l.Name, len(line))
		}

		id := line[1:]
		switch line[0] {
		case '+':
			l.ids[id] = struct{}{}
		case '-':
			delete(l.ids, id)
		default:
			return fmt.Errorf("id list %s: line does not start with + or -", l.Name)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("id list %s: failed to scan chunk: %w", l.Name, err)
	}

	return nil
}

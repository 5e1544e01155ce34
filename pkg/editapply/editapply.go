// Package editapply performs batched range edits against files on disk.
// A batch either applies in full or not at all: every file is read and its
// new content computed before anything is written.
package editapply

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/odvcencio/tether/pkg/errors"
	"github.com/odvcencio/tether/pkg/protocol"
)

// FileChange is one file's worth of range edits, already resolved to a
// filesystem path.
type FileChange struct {
	Path  string
	Edits []protocol.TextEdit
}

// Apply applies every change as a single batch. Edits within a file are
// applied bottom-up so earlier ranges stay valid regardless of input order.
// Any read, range, or write error rejects the whole batch.
func Apply(changes []FileChange) error {
	type staged struct {
		path    string
		content string
	}

	out := make([]staged, 0, len(changes))
	for _, change := range changes {
		data, err := os.ReadFile(change.Path)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeEditApply, "read target file").
				WithContext("path", change.Path)
		}
		content, err := applyToContent(string(data), change.Edits)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeEditApply, "apply edits").
				WithContext("path", change.Path)
		}
		out = append(out, staged{path: change.Path, content: content})
	}

	for _, s := range out {
		if err := writeFile(s.path, s.content); err != nil {
			return errors.Wrap(err, errors.ErrCodeEditApply, "write target file").
				WithContext("path", s.path)
		}
	}
	return nil
}

// applyToContent applies edits to a single file's content, highest range
// first.
func applyToContent(content string, edits []protocol.TextEdit) (string, error) {
	sorted := make([]protocol.TextEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].Range.Start, sorted[j].Range.Start
		if a.Line != b.Line {
			return a.Line > b.Line
		}
		return a.Character > b.Character
	})

	lineStarts := indexLines(content)
	for _, edit := range sorted {
		start, err := offsetFor(content, lineStarts, edit.Range.Start)
		if err != nil {
			return "", err
		}
		end, err := offsetFor(content, lineStarts, edit.Range.End)
		if err != nil {
			return "", err
		}
		if end < start {
			return "", fmt.Errorf("inverted range %d:%d-%d:%d",
				edit.Range.Start.Line, edit.Range.Start.Character,
				edit.Range.End.Line, edit.Range.End.Character)
		}
		content = content[:start] + edit.NewText + content[end:]
		lineStarts = indexLines(content)
	}
	return content, nil
}

// indexLines returns the byte offset of each line start.
func indexLines(content string) []int {
	starts := []int{0}
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// offsetFor converts a line/character position into a byte offset.
// Characters count runes within the line and clamp to the line's end.
func offsetFor(content string, lineStarts []int, pos protocol.Position) (int, error) {
	if pos.Line < 0 || pos.Character < 0 {
		return 0, fmt.Errorf("negative position %d:%d", pos.Line, pos.Character)
	}
	if pos.Line >= len(lineStarts) {
		return 0, fmt.Errorf("line %d beyond end of file (%d lines)", pos.Line, len(lineStarts))
	}

	start := lineStarts[pos.Line]
	lineEnd := len(content)
	if next := pos.Line + 1; next < len(lineStarts) {
		lineEnd = lineStarts[next] - 1 // exclude the newline
	}
	line := content[start:lineEnd]

	offset := start
	remaining := pos.Character
	for _, r := range line {
		if remaining == 0 {
			break
		}
		offset += len(string(r))
		remaining--
	}
	return offset, nil
}

// writeFile replaces path atomically via a sibling temp file.
func writeFile(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Describe summarizes a batch for logging.
func Describe(changes []FileChange) string {
	total := 0
	for _, c := range changes {
		total += len(c.Edits)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d edit(s) across %d file(s)", total, len(changes))
	return sb.String()
}

package editapply

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/odvcencio/tether/pkg/errors"
	"github.com/odvcencio/tether/pkg/protocol"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "target.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func edit(sl, sc, el, ec int, text string) protocol.TextEdit {
	return protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: sl, Character: sc},
			End:   protocol.Position{Line: el, Character: ec},
		},
		NewText: text,
	}
}

func TestApply_SingleEdit(t *testing.T) {
	path := writeTemp(t, "hello world\nsecond line\n")

	err := Apply([]FileChange{{
		Path:  path,
		Edits: []protocol.TextEdit{edit(0, 6, 0, 11, "tether")},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, path); got != "hello tether\nsecond line\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestApply_MultipleEditsBottomUp(t *testing.T) {
	path := writeTemp(t, "aaa\nbbb\nccc\n")

	// Given top-down, the applier must still produce the right result by
	// applying bottom-up internally.
	err := Apply([]FileChange{{
		Path: path,
		Edits: []protocol.TextEdit{
			edit(0, 0, 0, 3, "AAA"),
			edit(2, 0, 2, 3, "CCC"),
		},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, path); got != "AAA\nbbb\nCCC\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestApply_MultiLineRange(t *testing.T) {
	path := writeTemp(t, "one\ntwo\nthree\n")

	err := Apply([]FileChange{{
		Path:  path,
		Edits: []protocol.TextEdit{edit(0, 1, 2, 2, "-")},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, path); got != "o-ree\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestApply_Insertion(t *testing.T) {
	path := writeTemp(t, "ab\n")

	err := Apply([]FileChange{{
		Path:  path,
		Edits: []protocol.TextEdit{edit(0, 1, 0, 1, "XYZ")},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, path); got != "aXYZb\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestApply_MultiFileBatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	os.WriteFile(a, []byte("alpha\n"), 0o644)
	os.WriteFile(b, []byte("beta\n"), 0o644)

	err := Apply([]FileChange{
		{Path: a, Edits: []protocol.TextEdit{edit(0, 0, 0, 5, "ALPHA")}},
		{Path: b, Edits: []protocol.TextEdit{edit(0, 0, 0, 4, "BETA")}},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, a); got != "ALPHA\n" {
		t.Errorf("File a: %q", got)
	}
	if got := read(t, b); got != "BETA\n" {
		t.Errorf("File b: %q", got)
	}
}

func TestApply_MissingFileRejectsWholeBatch(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.txt")
	os.WriteFile(good, []byte("intact\n"), 0o644)

	err := Apply([]FileChange{
		{Path: good, Edits: []protocol.TextEdit{edit(0, 0, 0, 6, "mutated")}},
		{Path: filepath.Join(dir, "missing.txt"), Edits: []protocol.TextEdit{edit(0, 0, 0, 0, "x")}},
	})
	if err == nil {
		t.Fatal("Expected batch to fail")
	}
	if !errors.IsCode(err, errors.ErrCodeEditApply) {
		t.Errorf("Expected EDIT_APPLY code, got %v", err)
	}
	if got := read(t, good); got != "intact\n" {
		t.Errorf("Batch failure must not touch other files, got %q", got)
	}
}

func TestApply_OutOfRangeLineRejected(t *testing.T) {
	path := writeTemp(t, "only\n")

	err := Apply([]FileChange{{
		Path:  path,
		Edits: []protocol.TextEdit{edit(9, 0, 9, 1, "x")},
	}})
	if err == nil {
		t.Fatal("Expected out-of-range edit to fail")
	}
	if got := read(t, path); got != "only\n" {
		t.Errorf("Failed batch must not modify the file, got %q", got)
	}
}

func TestApply_UnicodeCharacterOffsets(t *testing.T) {
	path := writeTemp(t, "héllo\n")

	// Character positions count runes, not bytes.
	err := Apply([]FileChange{{
		Path:  path,
		Edits: []protocol.TextEdit{edit(0, 1, 0, 2, "e")},
	}})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := read(t, path); got != "hello\n" {
		t.Errorf("Unexpected content %q", got)
	}
}

func TestDescribe(t *testing.T) {
	changes := []FileChange{
		{Path: "a", Edits: []protocol.TextEdit{{}, {}}},
		{Path: "b", Edits: []protocol.TextEdit{{}}},
	}
	if got := Describe(changes); got != "3 edit(s) across 2 file(s)" {
		t.Errorf("Describe = %q", got)
	}
}

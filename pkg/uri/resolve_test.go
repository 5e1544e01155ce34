package uri

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestResolve(t *testing.T) {
	roots := []string{"/workspace"}

	tests := []struct {
		name    string
		raw     string
		roots   []string
		want    string
		wantErr bool
	}{
		{"file scheme", "file:///tmp/a.go", roots, filepath.FromSlash("/tmp/a.go"), false},
		{"posix absolute", "/tmp/b.go", roots, filepath.FromSlash("/tmp/b.go"), false},
		{"windows drive backslash", `C:\src\c.go`, roots, `C:\src\c.go`, false},
		{"windows drive slash", "C:/src/c.go", roots, "C:/src/c.go", false},
		{"windows file uri", "file:///C:/src/d.go", roots, filepath.FromSlash("C:/src/d.go"), false},
		{"workspace relative", "pkg/e.go", roots, filepath.Join("/workspace", "pkg", "e.go"), false},
		{"relative without root", "pkg/e.go", nil, "", true},
		{"empty", "  ", roots, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.raw, tt.roots)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Resolve(%q) expected error, got %q", tt.raw, got)
				}
				var resErr *ResolutionError
				if !errors.As(err, &resErr) {
					t.Errorf("Expected ResolutionError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) failed: %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestIsWindowsPath(t *testing.T) {
	if isWindowsPath("/tmp/x") {
		t.Error("POSIX path misclassified as Windows")
	}
	if !isWindowsPath(`Z:\x`) {
		t.Error("Drive-letter path not recognized")
	}
	if isWindowsPath("c:") {
		t.Error("Bare drive should not match")
	}
}

// Package uri resolves raw file references from the agent into local
// filesystem paths. The agent may send file: URIs, absolute paths from
// either platform, or paths relative to the workspace.
package uri

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ResolutionError reports a reference that could not be mapped to a local
// path. The surrounding edit batch skips the file and continues.
type ResolutionError struct {
	Raw    string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve %q: %s", e.Raw, e.Reason)
}

// Resolve maps a raw reference to a filesystem path. Precedence: explicit
// file: scheme, POSIX absolute path, Windows drive-letter path, then
// relative to the first workspace root.
func Resolve(raw string, roots []string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ResolutionError{Raw: raw, Reason: "empty reference"}
	}

	if strings.HasPrefix(raw, "file:") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", &ResolutionError{Raw: raw, Reason: err.Error()}
		}
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		if p == "" {
			return "", &ResolutionError{Raw: raw, Reason: "empty file URI path"}
		}
		// file:///C:/dir arrives as /C:/dir.
		if isWindowsPath(strings.TrimPrefix(p, "/")) {
			p = strings.TrimPrefix(p, "/")
		}
		return filepath.FromSlash(p), nil
	}

	if strings.HasPrefix(raw, "/") {
		return filepath.Clean(raw), nil
	}

	if isWindowsPath(raw) {
		return raw, nil
	}

	if len(roots) == 0 || strings.TrimSpace(roots[0]) == "" {
		return "", &ResolutionError{Raw: raw, Reason: "no workspace root for relative path"}
	}
	return filepath.Join(roots[0], filepath.FromSlash(raw)), nil
}

// isWindowsPath reports whether s starts with a drive letter, e.g. C:\ or C:/.
func isWindowsPath(s string) bool {
	if len(s) < 3 {
		return false
	}
	drive := s[0]
	if !(drive >= 'a' && drive <= 'z') && !(drive >= 'A' && drive <= 'Z') {
		return false
	}
	return s[1] == ':' && (s[2] == '\\' || s[2] == '/')
}

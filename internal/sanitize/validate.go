package sanitize

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Path validation errors.
var (
	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrPathTraversal indicates a path escapes its base via ".." segments.
	ErrPathTraversal = errors.New("path contains directory traversal")
)

// ValidatePath checks an operator-supplied filesystem path (the chromem
// store directory, the scrub allowlist file) and returns it cleaned and
// absolute. The daemon never opens paths from request input; these come
// from configuration, so a traversal here is a misconfiguration, not an
// attack, and is rejected before anything touches the filesystem.
//
// Relative paths resolve against the working directory. A path whose
// cleaned form still steps above its base ("../x", "a/../../x") is
// rejected; interior ".." that stays within the path ("/a/../b") cleans
// away and passes.
func ValidatePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("%w: contains NUL byte", ErrPathTraversal)
	}

	clean := filepath.Clean(path)
	for _, segment := range strings.Split(filepath.ToSlash(clean), "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q escapes its base", ErrPathTraversal, path)
		}
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}
	return abs, nil
}

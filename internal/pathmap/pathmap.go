package pathmap

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"shelfarr/internal/services"
)

// Within resolves candidate against root and returns the cleaned absolute
// path. It fails when the candidate is empty, contains NUL, or resolves
// outside root (through ".." segments or an unrelated absolute path).
// Relative candidates are interpreted relative to root.
func Within(root, candidate string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", violation("within", "root not configured", nil)
	}
	if strings.TrimSpace(candidate) == "" {
		return "", violation("within", "empty path", nil)
	}
	if strings.ContainsRune(candidate, 0) {
		return "", violation("within", "path contains NUL byte", nil)
	}

	cleanRoot := filepath.Clean(root)
	resolved := candidate
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(cleanRoot, resolved)
	}
	resolved = filepath.Clean(resolved)

	if !isUnder(cleanRoot, resolved, filepath.Separator) {
		return "", violation("within", fmt.Sprintf("%q must be within %q", candidate, cleanRoot), nil)
	}
	return resolved, nil
}

// Resolve is Within for paths that must exist: after the lexical check it
// follows symlinks in both root and candidate and fails with a path violation
// when the real target lies outside the real root. The returned path is the
// lexical one. A candidate that cannot be resolved returns the underlying
// filesystem error unwrapped.
func Resolve(root, candidate string) (string, error) {
	lexical, err := Within(root, candidate)
	if err != nil {
		return "", err
	}
	realRoot, err := filepath.EvalSymlinks(filepath.Clean(strings.TrimSpace(root)))
	if err != nil {
		return "", violation("resolve", "root is not resolvable", err)
	}
	target, err := filepath.EvalSymlinks(lexical)
	if err != nil {
		return "", err
	}
	if !isUnder(realRoot, target, filepath.Separator) {
		return "", violation("resolve", fmt.Sprintf("%q resolves to %q outside %q", candidate, target, realRoot), nil)
	}
	return lexical, nil
}

// Mapper translates paths reported by the torrent backend (remote) to the
// locally mounted equivalent by prefix substitution.
type Mapper struct {
	remoteRoot string
	localRoot  string
}

// NewMapper builds a Mapper. An empty local root maps paths unchanged.
func NewMapper(remoteRoot, localRoot string) Mapper {
	remote := path.Clean(strings.TrimSpace(remoteRoot))
	local := strings.TrimSpace(localRoot)
	if local == "" {
		local = remote
	}
	return Mapper{remoteRoot: remote, localRoot: filepath.Clean(local)}
}

// RemoteRoot returns the configured backend download root.
func (m Mapper) RemoteRoot() string { return m.remoteRoot }

// LocalRoot returns the local mount of the backend download root.
func (m Mapper) LocalRoot() string { return m.localRoot }

// Trusted reports whether a backend-reported path is non-empty and rooted
// under the remote root. Untrusted paths are treated as not yet available.
func (m Mapper) Trusted(remotePath string) bool {
	_, err := m.relative(remotePath)
	return err == nil
}

// Map converts a remote path to its local equivalent. It fails closed when
// the path does not start with the remote root.
func (m Mapper) Map(remotePath string) (string, error) {
	rel, err := m.relative(remotePath)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return m.localRoot, nil
	}
	return filepath.Join(m.localRoot, filepath.FromSlash(rel)), nil
}

func (m Mapper) relative(remotePath string) (string, error) {
	if m.remoteRoot == "" || m.remoteRoot == "." {
		return "", violation("map", "remote root not configured", nil)
	}
	trimmed := strings.TrimSpace(remotePath)
	if trimmed == "" {
		return "", violation("map", "empty remote path", nil)
	}
	if strings.ContainsRune(trimmed, 0) {
		return "", violation("map", "remote path contains NUL byte", nil)
	}
	// Windows-hosted backends report backslashes.
	normalized := strings.ReplaceAll(trimmed, "\\", "/")
	if !path.IsAbs(normalized) {
		return "", violation("map", fmt.Sprintf("remote path %q is not absolute", remotePath), nil)
	}
	cleaned := path.Clean(normalized)
	if !isUnder(m.remoteRoot, cleaned, '/') {
		return "", violation("map", fmt.Sprintf("remote path %q is outside %q", remotePath, m.remoteRoot), nil)
	}
	rel := strings.TrimPrefix(cleaned, m.remoteRoot)
	return strings.TrimPrefix(rel, "/"), nil
}

func isUnder(root, candidate string, sep rune) bool {
	if candidate == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(sep)) {
		prefix += string(sep)
	}
	return strings.HasPrefix(candidate, prefix)
}

func violation(operation, message string, err error) error {
	return services.Wrap(services.ErrPathSecurity, "pathmap", operation, message, err)
}

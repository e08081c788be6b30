package modules

import (
	"path"
	"strings"
)

// PathModule is require("path") with POSIX semantics.
type PathModule struct {
	paths PathResolver
}

// Separator constants exposed as path.sep and path.delimiter.
const (
	Sep       = "/"
	Delimiter = ":"
)

// Join joins the non-empty parts and normalizes the result.
func (m *PathModule) Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return "."
	}
	return m.Normalize(strings.Join(kept, Sep))
}

// Normalize resolves "." and ".." segments and collapses separators. A
// trailing separator is kept.
func (m *PathModule) Normalize(p string) string {
	if p == "" {
		return "."
	}
	out := path.Clean(p)
	if strings.HasSuffix(p, Sep) && out != Sep {
		out += Sep
	}
	return out
}

// IsAbsolute reports whether p starts at the root.
func (m *PathModule) IsAbsolute(p string) bool {
	return strings.HasPrefix(p, Sep)
}

// Dirname returns the directory portion of p.
func (m *PathModule) Dirname(p string) string {
	if p == "" {
		return "."
	}
	trimmed := trimTrailing(p)
	if trimmed == Sep {
		return Sep
	}
	i := strings.LastIndex(trimmed, Sep)
	switch {
	case i < 0:
		return "."
	case i == 0:
		return Sep
	default:
		return trimTrailing(trimmed[:i])
	}
}

// Basename returns the last portion of p, without ext when p ends in it.
func (m *PathModule) Basename(p, ext string) string {
	trimmed := trimTrailing(p)
	if trimmed == Sep {
		return ""
	}
	base := trimmed
	if i := strings.LastIndex(trimmed, Sep); i >= 0 {
		base = trimmed[i+1:]
	}
	if ext != "" && ext != base && strings.HasSuffix(base, ext) {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// Extname returns the extension of the last portion of p, from its last
// dot. Dotfiles have no extension.
func (m *PathModule) Extname(p string) string {
	base := m.Basename(p, "")
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return ""
	}
	return base[i:]
}

// Resolve folds parts right to left until an absolute path forms, falling
// back to the process working directory.
func (m *PathModule) Resolve(parts ...string) (string, error) {
	resolved := ""
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "" {
			continue
		}
		if resolved == "" {
			resolved = parts[i]
		} else {
			resolved = parts[i] + Sep + resolved
		}
		if m.IsAbsolute(parts[i]) {
			return path.Clean(resolved), nil
		}
	}
	if resolved == "" {
		resolved = "."
	}
	return m.paths.Resolve(resolved)
}

// Relative returns the path from from to to.
func (m *PathModule) Relative(from, to string) (string, error) {
	a, err := m.Resolve(from)
	if err != nil {
		return "", err
	}
	b, err := m.Resolve(to)
	if err != nil {
		return "", err
	}
	if a == b {
		return "", nil
	}
	as := splitAbs(a)
	bs := splitAbs(b)
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	var out []string
	for range as[n:] {
		out = append(out, "..")
	}
	out = append(out, bs[n:]...)
	return strings.Join(out, Sep), nil
}

func splitAbs(p string) []string {
	p = strings.Trim(p, Sep)
	if p == "" {
		return nil
	}
	return strings.Split(p, Sep)
}

func trimTrailing(p string) string {
	for len(p) > 1 && strings.HasSuffix(p, Sep) {
		p = p[:len(p)-1]
	}
	return p
}

package engine

import (
	"path"
	"strings"
)

// NormalizeDir returns p as an absolute directory path with a leading and a
// trailing slash and no "." or ".." elements.
//
//	NormalizeDir("pub/../incoming") == "/incoming/"
//	NormalizeDir("") == "/"
func NormalizeDir(p string) string {
	p = path.Clean("/" + p)
	if p == "/" {
		return p
	}
	return p + "/"
}

// Parent returns the directory above p, normalized. The parent of "/" is "/".
func Parent(p string) string {
	return NormalizeDir(path.Dir(strings.TrimSuffix(NormalizeDir(p), "/")))
}

// Join appends name to dir and normalizes the result as a directory.
func Join(dir, name string) string {
	return NormalizeDir(path.Join(dir, name))
}

func isDirPath(p string) bool {
	return strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

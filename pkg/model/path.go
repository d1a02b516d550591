package model

import "strings"

// PathSeparator separates the segments of a node path.
const PathSeparator = "/"

// RootPath is the path of a repository root tree.
const RootPath = ""

// ValidatePath checks that path names a node: not empty, no empty segment
// and not ending with the separator.
func ValidatePath(path string) error {
	if path == "" {
		return &InvalidPathError{Path: path, Reason: "empty path"}
	}
	if strings.HasSuffix(path, PathSeparator) {
		return &InvalidPathError{Path: path, Reason: "path ends with separator"}
	}
	if strings.HasPrefix(path, PathSeparator) || strings.Contains(path, PathSeparator+PathSeparator) {
		return &InvalidPathError{Path: path, Reason: "empty path segment"}
	}
	return nil
}

// JoinPath appends child to parent.
func JoinPath(parent, child string) string {
	if parent == "" {
		return child
	}
	if child == "" {
		return parent
	}
	return parent + PathSeparator + child
}

// ParentPath returns everything before the last segment of path.
func ParentPath(path string) string {
	i := strings.LastIndex(path, PathSeparator)
	if i < 0 {
		return RootPath
	}
	return path[:i]
}

// NodeName returns the last segment of path.
func NodeName(path string) string {
	return path[strings.LastIndex(path, PathSeparator)+1:]
}

// SplitPath returns the segments of path.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// IsDescendant reports whether path lies strictly below ancestor.
func IsDescendant(ancestor, path string) bool {
	if ancestor == RootPath {
		return path != RootPath
	}
	return strings.HasPrefix(path, ancestor+PathSeparator)
}

// IsSelfOrDescendant reports whether path equals ancestor or lies below it.
func IsSelfOrDescendant(ancestor, path string) bool {
	return path == ancestor || IsDescendant(ancestor, path)
}

// PathDepth is the number of segments in path.
func PathDepth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, PathSeparator) + 1
}

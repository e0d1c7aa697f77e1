// Package itempath maps logical slash-separated paths onto Graph
// path-addressing URLs under a drive root.
//
// A drive root is "/<kind>/<drive>/root", e.g. "/drive/ABC123/root" or
// "/sites/contoso,1,2/drive/root". The root item is addressed by the root
// URL itself; any other item is the root followed by ":/" and the
// per-segment escaped path. Actions and child collections are appended
// differently for the two shapes, so every caller goes through this package
// instead of concatenating strings.
//
// Paths are passed through byte for byte: names are not normalized and
// dot segments are never resolved. Validate rejects paths that would need
// either.
package itempath

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidPath is returned by Validate for paths with empty, "." or ".."
// segments.
var ErrInvalidPath = errors.New("invalid path")

// RootURL returns the drive root URL for a directory kind ("drive",
// "drives" or "sites") and a drive identifier.
func RootURL(kind, drive string) string {
	return "/" + kind + "/" + strings.Trim(drive, "/") + "/root"
}

// Clean trims leading and trailing slashes. The drive root is "", and so
// is ".".
func Clean(p string) string {
	p = strings.Trim(p, "/")
	if p == "." {
		return ""
	}

	return p
}

// Validate reports whether p can be addressed as given. Interior empty
// segments ("a//b") and "." or ".." segments are refused rather than
// collapsed, so a path never silently names a different item.
func Validate(p string) error {
	p = Clean(p)
	if p == "" {
		return nil
	}

	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "":
			return fmt.Errorf("%w %q: empty segment", ErrInvalidPath, p)
		case ".", "..":
			return fmt.Errorf("%w %q: %q segment", ErrInvalidPath, p, seg)
		}
	}

	return nil
}

// IsRoot reports whether p addresses the drive root.
func IsRoot(p string) bool {
	return Clean(p) == ""
}

// ItemURL returns the URL addressing the item at p.
func ItemURL(root, p string) string {
	p = Clean(p)
	if p == "" {
		return root
	}

	return root + ":/" + escape(p)
}

// ChildrenURL returns the children collection URL of the folder at p.
func ChildrenURL(root, p string) string {
	return ActionURL(root, p, "children")
}

// ActionURL returns the URL of a sub-resource or action ("content",
// "createUploadSession", "copy", "children") of the item at p.
func ActionURL(root, p, action string) string {
	p = Clean(p)
	if p == "" {
		return root + "/" + action
	}

	return root + ":/" + escape(p) + ":/" + action
}

// ReferencePath returns the parentReference.path value naming the folder
// at p, as accepted by move and copy.
func ReferencePath(root, p string) string {
	p = Clean(p)
	if p == "" {
		return root + ":"
	}

	return root + ":/" + escape(p)
}

// Split returns the parent folder and the leaf name of p. The parent of a
// top-level item is "".
func Split(p string) (parent, name string) {
	p = Clean(p)

	i := strings.LastIndex(p, "/")
	if i < 0 {
		return "", p
	}

	return p[:i], p[i+1:]
}

// Join joins a parent folder and a child name into a logical path.
func Join(parent, name string) string {
	parent = Clean(parent)
	if parent == "" {
		return Clean(name)
	}

	return Clean(parent + "/" + name)
}

// FromParentReference rebuilds the logical path of an item from its
// parentReference.path and name. The path prefix up to and including
// "root:" is dropped, whatever drive addressing form the server used.
func FromParentReference(root, ref, name string) string {
	var parent string

	switch {
	case strings.HasPrefix(ref, root+":"):
		parent = ref[len(root)+1:]
	default:
		if i := strings.Index(ref, "root:"); i >= 0 {
			parent = ref[i+len("root:"):]
		}
	}

	if unescaped, err := url.PathUnescape(parent); err == nil {
		parent = unescaped
	}

	return Join(parent, name)
}

// escape percent-encodes every segment of a trimmed path independently.
func escape(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}

	return strings.Join(segments, "/")
}

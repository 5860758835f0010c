package domain

import (
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// NewSlug derives a human-readable slug from the project name and creation
// time, e.g. "my-demo-1700000000000". It narrows collisions but does not
// prevent them; the catalog's unique index is the real guard.
func NewSlug(name string, now time.Time) string {
	base := strings.Join(strings.FieldsFunc(strings.ToLower(strings.TrimSpace(name)), unicode.IsSpace), "-")
	if base == "" {
		base = "project"
	}
	return base + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// NewContainerName allocates a fresh blob container name.
func NewContainerName() string {
	return "project-" + uuid.NewString()
}

// SplitPath splits a path-relative file name into its folder (may be empty)
// and base name. Only one folder level is supported.
func SplitPath(name string) (folder, base string, err error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: file name required", ErrValidation)
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", "", fmt.Errorf("%w: file name %q must be relative", ErrValidation, name)
	}

	parts := strings.Split(name, "/")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			return "", "", fmt.Errorf("%w: invalid file name %q", ErrValidation, name)
		}
	}

	switch len(parts) {
	case 1:
		return "", parts[0], nil
	case 2:
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%w: %q nests deeper than one folder", ErrValidation, name)
	}
}

var languageByExt = map[string]string{
	".js":   "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".css":  "css",
	".scss": "scss",
	".html": "html",
	".htm":  "html",
	".json": "json",
	".md":   "markdown",
	".svg":  "xml",
}

// DefaultLanguage is used when neither the caller nor the extension gives a tag.
const DefaultLanguage = "javascript"

// InferLanguage returns tag when set, otherwise a tag derived from the file
// extension.
func InferLanguage(name, tag string) string {
	if t := strings.TrimSpace(tag); t != "" {
		return t
	}
	if lang, ok := languageByExt[strings.ToLower(path.Ext(name))]; ok {
		return lang
	}
	return DefaultLanguage
}

// ContentType returns the advisory blob content type for a language tag.
func ContentType(language string) string {
	switch language {
	case "css":
		return "text/css"
	case "html":
		return "text/html"
	case "json":
		return "application/json"
	case "javascript":
		return "text/javascript"
	default:
		return "text/plain"
	}
}

// FilePath rebuilds the path-relative name of a record from its parent.
// folders maps folder record ids to their names.
func FilePath(rec FileRecord, folders map[string]string) string {
	if rec.ParentID == nil {
		return rec.Name
	}
	if parent, ok := folders[*rec.ParentID]; ok {
		return parent + "/" + rec.Name
	}
	return rec.Name
}

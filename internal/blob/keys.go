package blob

import (
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxExtensionLength = 16

// NewKey returns a fresh key of the form yyyy/mm/dd/<uuid><ext>. The extension
// is taken from suggestedName only when it is short and alphanumeric.
func NewKey(now time.Time, suggestedName string) string {
	return now.UTC().Format("2006/01/02") + "/" + uuid.NewString() + extension(suggestedName)
}

func extension(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	ext := strings.ToLower(path.Ext(path.Base(name)))
	if len(ext) < 2 || len(ext) > maxExtensionLength+1 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// ValidateKey rejects keys that are empty, absolute or contain traversal
// segments.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return ErrInvalidKey
	}
	for _, segment := range strings.Split(key, "/") {
		switch segment {
		case "", ".", "..":
			return ErrInvalidKey
		}
	}
	return nil
}

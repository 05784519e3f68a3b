package session

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmpijll/discrec/internal/types"
)

// timestampLayout gives one-second filename resolution; collisions are
// resolved with a numeric suffix.
const timestampLayout = "2006-01-02_150405"

// buildFilename assembles <origin>-<date>_<time>[-<label>].<ext>.
func buildFilename(origin string, t time.Time, label string, format types.Format) string {
	name := fmt.Sprintf("%s-%s", sanitizeLabel(origin), t.Format(timestampLayout))
	if label != "" {
		name += "-" + sanitizeLabel(label)
	}
	return name + "." + format.Extension()
}

// sanitizeLabel removes or replaces characters that are invalid in filenames.
func sanitizeLabel(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' {
			result = append(result, c)
		} else if c == ' ' {
			result = append(result, '-')
		}
	}
	if len(result) == 0 {
		return "recording"
	}
	return string(result)
}

// uniquePath returns dir/filename, appending -2, -3, ... before the
// extension while the path already exists.
func uniquePath(dir, filename string) string {
	path := filepath.Join(dir, filename)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(filename)
	stem := filename[:len(filename)-len(ext)]
	for n := 2; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s-%d%s", stem, n, ext))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

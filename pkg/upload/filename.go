package upload

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	unsafeChars        = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
	repeatedUnderscore = regexp.MustCompile(`_{2,}`)
	nonExtChars        = regexp.MustCompile(`[^a-z0-9]`)
)

// SanitizeFilename reduces name to a lowercase base name made of
// [a-z0-9._-]. Directory components of either separator style are dropped
// and leading dots are trimmed, so the result never escapes its directory.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = unsafeChars.ReplaceAllString(name, "_")
	name = repeatedUnderscore.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "file"
	}
	return strings.ToLower(name)
}

// SecureFilename returns "<unix millis>_<random token>.<ext>" where ext is
// taken from original. The original base name is discarded.
func SecureFilename(original string, now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	name := strconv.FormatInt(now.UnixMilli(), 10) + "_" + token

	if i := strings.LastIndexByte(original, '.'); i >= 0 {
		ext := nonExtChars.ReplaceAllString(strings.ToLower(original[i+1:]), "")
		if ext != "" {
			name += "." + ext
		}
	}
	return name
}

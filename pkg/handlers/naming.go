package handlers

import (
	"crypto/md5" // #nosec G501 -- used for naming, not for security
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// MaxIdentifierLength is the PostgreSQL identifier limit, in bytes, the alternates must respect.
const MaxIdentifierLength = 63

var launder = strings.NewReplacer(
	"-", "_",
	" ", "_",
	"#", "_",
	"\\", "_",
	".", "",
	")", "",
	"(", "",
	",", "",
	"&", "",
)

// FixupName normalises a layer name the way ogr2ogr launders table names.
func FixupName(name string) string {
	return truncate(launder.Replace(strings.ToLower(name)), MaxIdentifierLength-1)
}

// CreateAlternate derives a deterministic, collision free alternate for layerName within an execution.
func CreateAlternate(layerName, executionID string) string {
	sum := md5.Sum([]byte(layerName + "_" + executionID)) // #nosec G401
	hash := hex.EncodeToString(sum[:])

	alternate := layerName + "_" + hash
	if len(alternate) > MaxIdentifierLength {
		return truncate(layerName, 50) + hash[:13]
	}

	return alternate
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	end := 0
	for i, r := range s {
		next := i + utf8.RuneLen(r)
		if next > n {
			break
		}

		end = next
	}

	return s[:end]
}

// Package metadata reads and writes the tag fields the library cares
// about: duration, genre, year and the normalization marker. Tag parsing
// itself is delegated to taglib.
package metadata

import (
	"fmt"
	"os"
	"time"

	"go.senan.xyz/taglib"

	"musicman/pkg/utils"
)

// Custom properties. Year has no universal frame across formats and the
// normalization marker is ours, so both are stored as custom entries.
const (
	yearKey = "YEAR"
	normKey = "NORM"
)

// Info contains the metadata shown for a single song.
type Info struct {
	Duration   time.Duration
	Genre      string
	Year       string
	Normalized bool
}

// Placeholder is returned for files that cannot be decoded or parsed.
func Placeholder() Info {
	return Info{Genre: "Unknown"}
}

// Read returns the metadata for an audio file. Decode or parse failures
// degrade to the placeholder so a batch scan never aborts on one bad file.
func Read(path string) Info {
	info := Placeholder()

	props, err := taglib.ReadProperties(path)
	if err != nil {
		return info
	}
	info.Duration = props.Length

	tags, err := taglib.ReadTags(path)
	if err != nil {
		return info
	}

	if genre := firstTag(tags, taglib.Genre); genre != "" {
		info.Genre = genre
	}
	info.Year = firstTag(tags, yearKey)
	info.Normalized = firstTag(tags, normKey) == "True"

	return info
}

// Write rewrites the genre and year tags of an audio file. The file is
// copied to a temp sibling first and renamed back over the original, so a
// failed write never leaves a half-tagged file behind.
func Write(path, genre, year string) error {
	tags := map[string][]string{
		taglib.Genre: {genre},
		yearKey:      {year},
	}
	return writeTags(path, tags)
}

// IsNormalized reports whether the file carries the normalization marker.
func IsNormalized(path string) bool {
	tags, err := taglib.ReadTags(path)
	if err != nil {
		return false
	}
	return firstTag(tags, normKey) == "True"
}

// MarkNormalized records in the file's tags that its loudness has been
// normalized. Same temp-then-rename scheme as Write.
func MarkNormalized(path string) error {
	return writeTags(path, map[string][]string{normKey: {"True"}})
}

// ClearNormalized removes the normalization marker.
func ClearNormalized(path string) error {
	return writeTags(path, map[string][]string{normKey: {"False"}})
}

func writeTags(path string, tags map[string][]string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot tag %s: %w", path, err)
	}

	tmp := utils.TempSibling(path)
	if err := utils.CopyFile(path, tmp); err != nil {
		return err
	}

	if err := taglib.WriteTags(tmp, tags, 0); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write tags to %s: %w", path, err)
	}

	return utils.ReplaceFile(tmp, path)
}

func firstTag(tags map[string][]string, key string) string {
	if vals, ok := tags[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

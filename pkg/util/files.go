package util

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ListFiles returns the regular files in dir with the given extension in
// natural order, so frame_10000 follows frame_9999. The extension match is
// case-insensitive.
func ListFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	ext = strings.ToLower(ext)
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext != "" && strings.ToLower(filepath.Ext(entry.Name())) != ext {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return NaturalLess(filepath.Base(files[i]), filepath.Base(files[j]))
	})
	return files, nil
}

// NaturalLess orders strings with embedded numbers by numeric value
func NaturalLess(a, b string) bool {
	as := digitRun.FindAllStringIndex(a, -1)
	bs := digitRun.FindAllStringIndex(b, -1)
	pa, pb := 0, 0
	for i := 0; i < len(as) && i < len(bs); i++ {
		if a[pa:as[i][0]] != b[pb:bs[i][0]] {
			return a[pa:as[i][0]] < b[pb:bs[i][0]]
		}
		if c := compareDigits(a[as[i][0]:as[i][1]], b[bs[i][0]:bs[i][1]]); c != 0 {
			return c < 0
		}
		pa, pb = as[i][1], bs[i][1]
	}
	return a < b
}

// compareDigits compares decimal strings of any length without parsing
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		if len(x) < len(y) {
			return -1
		}
		return 1
	}
	return strings.Compare(x, y)
}

// BaseName returns the file name without directory or extension
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

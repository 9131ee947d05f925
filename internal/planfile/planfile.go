// Package planfile extracts the title from a plan's markdown body.
// It is deliberately minimal: the body itself is passed opaquely to
// the agent as part of the worker prompt, and claude-tracker never
// parses anything beyond the first heading.
package planfile

import (
	"bufio"
	"os"
	"regexp"
	"strings"
)

var headingPattern = regexp.MustCompile(`^#\s+(.+)$`)

// ParseTitle returns the trimmed text of the first line in path
// matching "# heading". A missing file or a file with no such
// heading returns ("", nil) — absence of a title is not an error,
// since a plan may still be mid-draft.
func ParseTitle(path string) (string, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if match := headingPattern.FindStringSubmatch(scanner.Text()); match != nil {
			return strings.TrimSpace(match[1]), nil
		}
	}
	return "", scanner.Err()
}

package project

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNoConfigObject is returned when the configuration file has neither an
// extends list nor a recognized root object to insert one into.
var ErrNoConfigObject = errors.New("could not find a config object to update")

// extendsOpenRe locates the opening bracket of an extends list. The closing
// bracket is found by scanning with a depth counter, since entries may be
// [locator, { install: true }] tuples carrying their own brackets.
var extendsOpenRe = regexp.MustCompile(`extends:\s*\[`)

// Root object wrappers recognized when inserting a fresh extends property.
var configWrappers = []string{"defineNuxtConfig({", "export default {"}

var (
	trailingCommaRe = regexp.MustCompile(`,(\s*\])`)
	leadingCommaRe  = regexp.MustCompile(`\[\s*,`)
)

// SourceEntry renders the extends entry for a layer source: a bare string
// locator, or a [locator, { install: true }] tuple when the layer declares
// dependencies the build tool should install.
func SourceEntry(locator string, withInstall bool) string {
	if withInstall {
		return fmt.Sprintf("['%s', { install: true }]", locator)
	}
	return fmt.Sprintf("'%s'", locator)
}

// HasSource reports whether the config file already references the locator
// or an equivalent path fragment.
func HasSource(configPath, locator, pathFragment string) (bool, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return false, err
	}
	content := string(data)
	if strings.Contains(content, locator) {
		return true, nil
	}
	return pathFragment != "" && strings.Contains(content, pathFragment), nil
}

// AddSource splices a layer source entry into the config file's extends
// list. The file is treated as opaque text; only the extends property (or,
// when absent, the opening of the root config object) is touched.
func AddSource(configPath, locator string, withInstall bool) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	content := string(data)
	entry := SourceEntry(locator, withInstall)

	if loc := extendsOpenRe.FindStringIndex(content); loc != nil {
		open := loc[1] - 1
		end := matchingBracket(content, open)
		if end == -1 {
			return ErrNoConfigObject
		}
		if strings.TrimSpace(content[open+1:end]) != "" {
			// Append after the existing entries, before the closing bracket.
			content = content[:end] + ", " + entry + content[end:]
		} else {
			content = content[:open+1] + entry + content[end:]
		}
		return writeConfig(configPath, content)
	}

	for _, wrapper := range configWrappers {
		idx := strings.Index(content, wrapper)
		if idx == -1 {
			continue
		}
		insertAt := idx + len(wrapper)
		content = content[:insertAt] + "\n  extends: [" + entry + "]," + content[insertAt:]
		return writeConfig(configPath, content)
	}

	return ErrNoConfigObject
}

// matchingBracket returns the index of the ']' closing the '[' at open, or -1
// when the brackets are unbalanced.
func matchingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// RemoveSource strips a layer source entry from the config file, handling
// single- and double-quoted forms and cleaning up any comma left behind. A
// locator that is not present leaves the file untouched.
func RemoveSource(configPath, locator string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}
	content := string(data)

	// A version-pinned locator carries a "#vX.Y.Z" suffix inside the quotes.
	escaped := regexp.QuoteMeta(locator) + `(?:#[^'"]*)?`
	patterns := []*regexp.Regexp{
		// Tuple form first so the bare-string patterns cannot leave the
		// tuple's brackets behind. The second element must be an options
		// object, otherwise the extends array itself would match when the
		// locator is its first entry.
		regexp.MustCompile(`\[\s*'` + escaped + `'\s*,\s*\{[^\]]*\]\s*,?\s*`),
		regexp.MustCompile(`\[\s*"` + escaped + `"\s*,\s*\{[^\]]*\]\s*,?\s*`),
		regexp.MustCompile(`'` + escaped + `'\s*,?\s*`),
		regexp.MustCompile(`"` + escaped + `"\s*,?\s*`),
	}
	for _, p := range patterns {
		content = p.ReplaceAllString(content, "")
	}

	content = trailingCommaRe.ReplaceAllString(content, "$1")
	content = leadingCommaRe.ReplaceAllString(content, "[")

	if content == string(data) {
		return nil
	}
	return writeConfig(configPath, content)
}

func writeConfig(configPath, content string) error {
	info, err := os.Stat(configPath)
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, []byte(content), info.Mode().Perm())
}

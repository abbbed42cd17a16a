// Package useragent derives a browser family from raw User-Agent strings
// using a small pattern database compiled with PCRE.
package useragent

import (
	"embed"
	"fmt"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// UnknownBrowser is reported when no pattern matches.
const UnknownBrowser = "unknown"

// UserAgent holds the detection result for one raw UA string.
type UserAgent struct {
	UserAgent string
	Browser   string
	Bot       bool
}

//go:embed database/browsers.yml
//go:embed database/bots.yml
var databaseFiles embed.FS

type patternEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type compiledEntry struct {
	regex *pcre.Regexp
	name  string
}

var (
	loadOnce sync.Once
	loadErr  error
	browsers []compiledEntry
	bots     []compiledEntry
)

func loadDatabase() error {
	loadOnce.Do(func() {
		browsers, loadErr = compileFile("database/browsers.yml")
		if loadErr != nil {
			return
		}
		bots, loadErr = compileFile("database/bots.yml")
	})
	return loadErr
}

func compileFile(path string) ([]compiledEntry, error) {
	raw, err := databaseFiles.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern database %s: %w", path, err)
	}

	var entries []patternEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse pattern database %s: %w", path, err)
	}

	compiled := make([]compiledEntry, 0, len(entries))
	for _, entry := range entries {
		regex, err := pcre.Compile(entry.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %q: %w", entry.Regex, err)
		}
		compiled = append(compiled, compiledEntry{regex: regex, name: entry.Name})
	}
	return compiled, nil
}

// Parse detects browser family and bot status for a raw UA string.
func Parse(rawUA string) UserAgent {
	result := UserAgent{UserAgent: rawUA, Browser: UnknownBrowser}
	if rawUA == "" {
		return result
	}
	if err := loadDatabase(); err != nil {
		return result
	}

	for _, entry := range bots {
		if entry.regex.MatchString(rawUA) {
			result.Bot = true
			return result
		}
	}

	// Order matters: derivative browsers ship the engines they embed.
	for _, entry := range browsers {
		if entry.regex.MatchString(rawUA) {
			result.Browser = entry.name
			return result
		}
	}
	return result
}

// BrowserFamily returns the normalized browser family for a raw UA string.
// Bots and unrecognized agents report UnknownBrowser.
func BrowserFamily(rawUA string) string {
	parsed := Parse(rawUA)
	if parsed.Bot {
		return UnknownBrowser
	}
	return parsed.Browser
}

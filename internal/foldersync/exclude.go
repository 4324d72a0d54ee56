package foldersync

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is an optional gitignore style file at the local root
const IgnoreFileName = ".s3syncignore"

// tempPrefix names in-flight download files, never synced
const tempPrefix = ".s3sync-tmp-"

// Matcher decides which relative paths are left out of a sync. A path is excluded when it or
// any of its ancestor directories matches a pattern.
type Matcher struct {
	patterns []string
	ignore   *gitignore.GitIgnore
}

// NewMatcher compiles doublestar patterns. A pattern without a slash matches a single path
// segment at any depth, so ".git" and "*.tmp" work anywhere in the tree.
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(filepath.ToSlash(p))
		p = strings.TrimPrefix(p, "./")
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid exclude pattern %q", p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// LoadIgnoreFile adds the rules of root/.s3syncignore when the file exists.
func (m *Matcher) LoadIgnoreFile(root string) error {
	path := filepath.Join(root, IgnoreFileName)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	m.ignore = gitignore.CompileIgnoreLines(lines...)
	slog.Debug("ignore file loaded", "path", path, "rules", len(lines))
	return nil
}

// Excluded reports whether rel, a slash separated relative path, is left out.
func (m *Matcher) Excluded(rel string) bool {
	if rel == "" {
		return false
	}
	base := rel[strings.LastIndexByte(rel, '/')+1:]
	if base == IgnoreFileName || strings.HasPrefix(base, tempPrefix) {
		return true
	}
	if m == nil {
		return false
	}
	if m.ignore != nil && m.ignore.MatchesPath(rel) {
		return true
	}

	// walk rel and its ancestors: a, a/b, a/b/c.txt
	for i := 0; i <= len(rel); i++ {
		if i < len(rel) && rel[i] != '/' {
			continue
		}
		candidate := rel[:i]
		segment := candidate[strings.LastIndexByte(candidate, '/')+1:]
		for _, p := range m.patterns {
			target := candidate
			if !strings.Contains(p, "/") {
				target = segment
			}
			if ok, _ := doublestar.Match(p, target); ok {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) Patterns() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.patterns...)
}

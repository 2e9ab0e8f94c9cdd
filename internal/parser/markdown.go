package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/timefmt"
)

var (
	// inlineTagRegex matches #tag-name (but not #123 or inside code blocks)
	inlineTagRegex = regexp.MustCompile(`(?:^|[^&\w])#([a-zA-Z][a-zA-Z0-9_/-]*)`)

	// codeBlockRegex matches fenced code blocks
	codeBlockRegex = regexp.MustCompile("(?s)```.*?```")

	// inlineCodeRegex matches inline code
	inlineCodeRegex = regexp.MustCompile("`[^`]+`")
)

// ParsedNote is a markdown note file split into note fields
type ParsedNote struct {
	Frontmatter *Frontmatter
	// Title comes from frontmatter, falling back to the file name
	Title      string
	Body       string
	RawContent string
	// Tags merges frontmatter tags with inline #tags
	Tags []string
}

// Parser handles parsing of markdown notes
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads and parses a markdown file
func (p *Parser) ParseFile(path string) (*ParsedNote, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !IsValidUTF8(string(content)) {
		return nil, fmt.Errorf("%s is not valid UTF-8", path)
	}
	return p.ParseContent(string(content), path)
}

// ParseContent parses markdown content
func (p *Parser) ParseContent(content string, path string) (*ParsedNote, error) {
	fm, body, err := ParseFrontmatter(content)
	if err != nil {
		return nil, err
	}

	parsed := &ParsedNote{
		Frontmatter: fm,
		Body:        body,
		RawContent:  content,
		Tags:        MergeTags(fm.Tags, extractInlineTags(body)),
	}

	if fm.Title != nil && *fm.Title != "" {
		parsed.Title = *fm.Title
	} else {
		filename := filepath.Base(path)
		parsed.Title = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	return parsed, nil
}

// extractInlineTags finds all #tags in the content, excluding code blocks
func extractInlineTags(content string) []string {
	cleanContent := codeBlockRegex.ReplaceAllString(content, "")
	cleanContent = inlineCodeRegex.ReplaceAllString(cleanContent, "")

	matches := inlineTagRegex.FindAllStringSubmatch(cleanContent, -1)
	seen := make(map[string]bool)
	var tags []string

	for _, match := range matches {
		tag := strings.ToLower(strings.TrimSpace(match[1]))
		if tag != "" && !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}

	return tags
}

// MergeTags combines tag lists, lowercased and without duplicates
func MergeTags(lists ...[]string) []string {
	seen := make(map[string]bool)
	var merged []string

	for _, list := range lists {
		for _, tag := range list {
			tag = strings.ToLower(strings.TrimSpace(tag))
			if tag != "" && !seen[tag] {
				seen[tag] = true
				merged = append(merged, tag)
			}
		}
	}

	return merged
}

type exportFrontmatter struct {
	ID       string   `yaml:"id"`
	Title    string   `yaml:"title,omitempty"`
	Tags     []string `yaml:"tags,omitempty"`
	Created  string   `yaml:"created,omitempty"`
	Modified string   `yaml:"modified,omitempty"`
}

// RenderNote writes n as a markdown file. Parsing the result yields the
// note's id, title, tags and timestamps, with its content as the body.
func RenderNote(n note.Note) (string, error) {
	fm := exportFrontmatter{
		ID:    n.ID,
		Title: n.Title,
		Tags:  n.Tags,
	}
	if !n.CreatedAt.IsZero() {
		fm.Created = timefmt.Format(n.CreatedAt)
	}
	if !n.UpdatedAt.IsZero() {
		fm.Modified = timefmt.Format(n.UpdatedAt)
	}

	out, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n" + n.Content, nil
}

// FileTimestamp returns the modification time of path, or of the
// frontmatter when it records one.
func FileTimestamp(path string, fm *Frontmatter) (time.Time, error) {
	if fm != nil && fm.Modified != nil {
		return *fm.Modified, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime().UTC(), nil
}

// IsValidUTF8 checks if content is valid UTF-8
func IsValidUTF8(content string) bool {
	return utf8.ValidString(content)
}

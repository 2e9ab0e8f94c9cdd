package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vonshlovens/nebula-notes/internal/timefmt"
)

// frontmatterRegex matches YAML frontmatter between --- delimiters
var frontmatterRegex = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

// Frontmatter represents parsed YAML frontmatter from a note file
type Frontmatter struct {
	ID       string
	Title    *string
	Tags     []string
	Created  *time.Time
	Modified *time.Time
	Extra    map[string]any // Unknown fields
}

// flexibleTime accepts every layout timefmt understands
type flexibleTime struct {
	time.Time
}

func (ft *flexibleTime) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	if t, err := timefmt.Parse(str); err == nil {
		ft.Time = t
	}
	return nil // Don't fail on unparseable dates, just leave empty
}

type rawFrontmatter struct {
	ID       string       `yaml:"id"`
	Title    *string      `yaml:"title"`
	Tags     any          `yaml:"tags"` // Can be string or []string
	Created  flexibleTime `yaml:"created"`
	Modified flexibleTime `yaml:"modified"`
}

var knownFields = map[string]bool{
	"id": true, "title": true, "tags": true, "created": true, "modified": true,
}

// ParseFrontmatter extracts and parses YAML frontmatter from content.
// Malformed frontmatter is treated as part of the body.
func ParseFrontmatter(content string) (*Frontmatter, string, error) {
	fm := &Frontmatter{
		Extra: make(map[string]any),
	}

	match := frontmatterRegex.FindStringSubmatch(content)
	if match == nil {
		return fm, content, nil
	}

	yamlContent := match[1]
	body := content[len(match[0]):]

	var raw rawFrontmatter
	if err := yaml.Unmarshal([]byte(yamlContent), &raw); err != nil {
		return fm, content, nil
	}

	fm.ID = strings.TrimSpace(raw.ID)
	fm.Title = raw.Title
	fm.Tags = normalizeStringArray(raw.Tags)
	if !raw.Created.IsZero() {
		t := raw.Created.Time
		fm.Created = &t
	}
	if !raw.Modified.IsZero() {
		t := raw.Modified.Time
		fm.Modified = &t
	}

	var allFields map[string]any
	if err := yaml.Unmarshal([]byte(yamlContent), &allFields); err == nil {
		for k, v := range allFields {
			if !knownFields[k] {
				fm.Extra[k] = v
			}
		}
	}

	return fm, body, nil
}

// normalizeStringArray converts string, []string or []any to []string
func normalizeStringArray(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	case []string:
		return val
	case []any:
		result := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}

// HasFrontmatter checks if content has YAML frontmatter
func HasFrontmatter(content string) bool {
	return frontmatterRegex.MatchString(content)
}

// SetField sets key in the frontmatter of content, keeping every other
// field and its order. Content without frontmatter gets a new block.
func SetField(content, key, value string) (string, error) {
	match := frontmatterRegex.FindStringSubmatch(content)
	if match == nil {
		block, err := renderBlock([][2]string{{key, value}})
		if err != nil {
			return "", err
		}
		return block + content, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(match[1]), &doc); err != nil {
		return "", fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	var mapping *yaml.Node
	switch {
	case doc.Kind == yaml.DocumentNode && len(doc.Content) == 1 && doc.Content[0].Kind == yaml.MappingNode:
		mapping = doc.Content[0]
	case doc.Kind == 0:
		// Empty frontmatter block
		mapping = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}
	default:
		return "", fmt.Errorf("frontmatter is not a mapping")
	}

	setMappingValue(mapping, key, value)

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}

	return "---\n" + buf.String() + "---\n" + content[len(match[0]):], nil
}

// setMappingValue replaces the value of key, or prepends the pair
func setMappingValue(mapping *yaml.Node, key, value string) {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			mapping.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
			return
		}
	}
	pair := []*yaml.Node{
		{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	}
	mapping.Content = append(pair, mapping.Content...)
}

// renderBlock writes ordered string pairs as a frontmatter block
func renderBlock(pairs [][2]string) (string, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, p := range pairs {
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p[0]},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p[1]},
		)
	}
	out, err := yaml.Marshal(mapping)
	if err != nil {
		return "", fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	return "---\n" + string(out) + "---\n", nil
}

// Package manifest parses deployment manifests written in markdown.
//
// A manifest names the agents to run and optionally overrides the priority
// chain and execution settings:
//
//	---
//	maestro:
//	  validation: automated
//	  rollback: true
//	  max_retries: 1
//	  timeout_seconds: 300
//	---
//	# Checkout Deployment
//
//	## Agents
//	- security-auditor
//	- test-automator
//
//	## Priority
//	1. security
//	2. testing
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/maestro/internal/models"
)

// Manifest is a parsed deployment manifest.
type Manifest struct {
	Name            string
	Agents          []string
	PriorityChain   map[string]int
	ValidationMode  models.ValidationMode
	RollbackEnabled bool
	MaxRetries      int
	TimeoutSeconds  int
	Parallel        bool
}

// maestroConfig is the optional frontmatter block.
type maestroConfig struct {
	Validation     string `yaml:"validation"`
	Rollback       *bool  `yaml:"rollback"`
	MaxRetries     int    `yaml:"max_retries"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Parallel       bool   `yaml:"parallel"`
}

// Parser parses markdown deployment manifests.
type Parser struct {
	markdown goldmark.Markdown
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{markdown: goldmark.New()}
}

// ParseFile parses the manifest at path.
func (p *Parser) ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Parse reads and parses a manifest.
func (p *Parser) Parse(r io.Reader) (*Manifest, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}

	m := &Manifest{
		ValidationMode:  models.ValidationAutomated,
		RollbackEnabled: true,
	}

	content, frontmatter := extractFrontmatter(content)
	if frontmatter != nil {
		if err := applyFrontmatter(frontmatter, m); err != nil {
			return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
		}
	}

	doc := p.markdown.Parser().Parse(text.NewReader(content))
	if err := p.extractSections(doc, content, m); err != nil {
		return nil, err
	}

	if len(m.Agents) == 0 {
		return nil, fmt.Errorf("manifest has no agents: add an \"## Agents\" section with a bullet list")
	}

	return m, nil
}

// Config builds a validated deployment configuration from the manifest.
func (m *Manifest) Config() (*models.DeploymentConfig, error) {
	cfg, err := models.NewDeploymentConfig(m.Agents, m.PriorityChain, m.ValidationMode, m.RollbackEnabled)
	if err != nil {
		return nil, err
	}
	if m.MaxRetries > 0 {
		cfg.MaxRetries = m.MaxRetries
	}
	if m.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = m.TimeoutSeconds
	}
	cfg.ParallelExecution = m.Parallel
	return cfg, nil
}

// priorityItemRegex matches a priority entry with an explicit rank, e.g.
// "security: 1". Entries without a rank take their list position.
var priorityItemRegex = regexp.MustCompile(`^([\w-]+)\s*:\s*(\d+)$`)

// extractSections walks the AST collecting the title and the Agents and
// Priority sections.
func (p *Parser) extractSections(doc ast.Node, source []byte, m *Manifest) error {
	var section string

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := strings.TrimSpace(nodeText(node, source))
			if node.Level == 1 && m.Name == "" {
				m.Name = title
				continue
			}
			if node.Level == 2 {
				section = strings.ToLower(title)
			}

		case *ast.List:
			items := listItems(node, source)
			switch section {
			case "agents":
				m.Agents = append(m.Agents, items...)
			case "priority":
				if err := applyPriorityItems(m, items); err != nil {
					return err
				}
			}

		case *ast.Paragraph:
			// A priority chain can also be written inline: "a > b > c".
			if section == "priority" && m.PriorityChain == nil {
				line := strings.TrimSpace(nodeText(node, source))
				if strings.Contains(line, ">") {
					applyPriorityChainLine(m, line)
				}
			}
		}
	}
	return nil
}

// applyPriorityItems fills the chain from list entries. "security: 2" pins
// an explicit rank; a bare "security" ranks by list position.
func applyPriorityItems(m *Manifest, items []string) error {
	if m.PriorityChain == nil {
		m.PriorityChain = make(map[string]int)
	}
	for i, item := range items {
		if matches := priorityItemRegex.FindStringSubmatch(item); len(matches) == 3 {
			rank, err := strconv.Atoi(matches[2])
			if err != nil {
				return fmt.Errorf("invalid priority rank in %q: %w", item, err)
			}
			m.PriorityChain[matches[1]] = rank
			continue
		}
		m.PriorityChain[item] = i + 1
	}
	return nil
}

// applyPriorityChainLine fills the chain from an "a > b > c" line.
func applyPriorityChainLine(m *Manifest, line string) {
	chain := make(map[string]int)
	for i, part := range strings.Split(line, ">") {
		category := strings.TrimSpace(part)
		if category != "" {
			chain[category] = i + 1
		}
	}
	if len(chain) > 0 {
		m.PriorityChain = chain
	}
}

// listItems collects the text of each item in a list node.
func listItems(list *ast.List, source []byte) []string {
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		if txt := strings.TrimSpace(nodeText(item, source)); txt != "" {
			items = append(items, txt)
		}
	}
	return items
}

// nodeText extracts the plain text of a node and its descendants.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if txt, ok := child.(*ast.Text); ok {
			buf.Write(txt.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// applyFrontmatter merges the optional maestro frontmatter block.
func applyFrontmatter(frontmatter []byte, m *Manifest) error {
	var config struct {
		Maestro *maestroConfig `yaml:"maestro"`
	}
	if err := yaml.Unmarshal(frontmatter, &config); err != nil {
		return err
	}
	if config.Maestro == nil {
		return nil
	}

	fm := config.Maestro
	if fm.Validation != "" {
		m.ValidationMode = models.ValidationMode(fm.Validation)
	}
	if fm.Rollback != nil {
		m.RollbackEnabled = *fm.Rollback
	}
	m.MaxRetries = fm.MaxRetries
	m.TimeoutSeconds = fm.TimeoutSeconds
	m.Parallel = fm.Parallel
	return nil
}

// extractFrontmatter splits YAML frontmatter from markdown content.
// Returns the content without frontmatter and the frontmatter bytes.
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := bytes.Split(content, []byte("\n"))

	if len(lines) < 3 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}

	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			frontmatter := bytes.Join(lines[1:i], []byte("\n"))
			body := bytes.Join(lines[i+1:], []byte("\n"))
			return body, frontmatter
		}
	}

	return content, nil
}

// Package agents discovers agent definitions from markdown files, resolves
// their inheritance chains, and merges caller overrides into effective
// execution settings.
package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/ensemble/internal/logx"
	"github.com/ShayCichocki/ensemble/pkg/models"
)

// frontmatter is the YAML header of an agent definition file.
type frontmatter struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Tools       string      `yaml:"tools"`
	Model       string      `yaml:"model"`
	Thinking    interface{} `yaml:"thinking"`
	Extends     string      `yaml:"extends"`
}

// Discover loads agent definitions from the user directory and, when
// present, the project directory. Project definitions shadow user
// definitions with the same name. Either directory may be missing.
func Discover(userDir, projectDir string) (map[string]*models.AgentConfig, error) {
	agents := make(map[string]*models.AgentConfig)

	for _, dir := range []struct {
		path   string
		source models.AgentSource
	}{
		{userDir, models.AgentSourceUser},
		{projectDir, models.AgentSourceProject},
	} {
		if dir.path == "" {
			continue
		}
		loaded, err := loadDir(dir.path, dir.source)
		if err != nil {
			return nil, err
		}
		for _, agent := range loaded {
			agents[agent.Name] = agent
		}
	}

	return agents, nil
}

// loadDir reads every *.md file in dir. Files without the required
// frontmatter fields are skipped, not failed.
func loadDir(dir string, source models.AgentSource) ([]*models.AgentConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read agents directory %s: %w", dir, err)
	}

	var agents []*models.AgentConfig
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		agent, err := ParseFile(path, source)
		if err != nil {
			logx.Debugf("[agents] skipping %s: %v", path, err)
			continue
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

// ParseFile reads one agent definition file.
func ParseFile(path string, source models.AgentSource) (*models.AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent file: %w", err)
	}

	agent, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	agent.Source = source
	agent.FilePath = path
	return agent, nil
}

// Parse decodes an agent definition: YAML frontmatter between --- delimiter
// lines, followed by the system prompt body.
func Parse(content string) (*models.AgentConfig, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(content, "---\n") {
		return nil, fmt.Errorf("missing frontmatter")
	}

	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter")
	}
	block := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	if fm.Description == "" {
		return nil, fmt.Errorf("missing description")
	}

	return &models.AgentConfig{
		Name:         fm.Name,
		Description:  fm.Description,
		Tools:        splitTools(fm.Tools),
		Model:        fm.Model,
		Thinking:     normalizeThinking(fm.Thinking),
		Extends:      fm.Extends,
		SystemPrompt: strings.TrimSpace(body),
	}, nil
}

// splitTools parses a comma-separated tool list, preserving order.
func splitTools(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	tools := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tools = append(tools, p)
		}
	}
	return tools
}

// normalizeThinking accepts an integer token budget or one of the labels
// low, medium, high. Anything else is dropped.
func normalizeThinking(v interface{}) string {
	switch t := v.(type) {
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.Itoa(int(t))
	case string:
		switch t {
		case "low", "medium", "high":
			return t
		}
		if _, err := strconv.Atoi(t); err == nil {
			return t
		}
	}
	return ""
}

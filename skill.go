package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const skillFileName = "SKILL.md"

// skillFrontmatter mirrors the YAML header every SKILL.md carries.
type skillFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// skillMetadata is what a discovered skill exposes to the model before its
// body is loaded.
type skillMetadata struct {
	Name        string
	Description string
	Path        string
	Body        string
}

// discoverSkills walks {root}/{skillsDir} ({root}/.skills when skillsDir is
// empty) looking for SKILL.md files, parsing each one's YAML frontmatter and
// keeping the remainder as body text. If that directory does not exist no
// skills are returned; no other location is searched. Grounded on intelligencedev-manifold's skills.Loader, generalized
// from a cached per-workdir Manager down to a direct, uncached walk: asimi
// already re-reads its tool catalog once per session rather than per
// request, so the loader's cache has no analogous call site here.
func discoverSkills(root, skillsDir string) ([]skillMetadata, error) {
	if strings.TrimSpace(skillsDir) == "" {
		skillsDir = ".skills"
	}
	dir := filepath.Join(root, skillsDir)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var out []skillMetadata
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != skillFileName {
			return nil
		}
		md, parseErr := parseSkillFile(path)
		if parseErr != nil {
			return nil
		}
		out = append(out, md)
		return nil
	})
	if walkErr != nil {
		return out, walkErr
	}
	return out, nil
}

func parseSkillFile(path string) (skillMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return skillMetadata{}, fmt.Errorf("read: %w", err)
	}
	const delim = "---"
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delim {
		return skillMetadata{}, fmt.Errorf("missing YAML frontmatter delimited by ---")
	}
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delim {
			end = i
			break
		}
	}
	if end < 0 {
		return skillMetadata{}, fmt.Errorf("unterminated YAML frontmatter")
	}

	var fm skillFrontmatter
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
		return skillMetadata{}, fmt.Errorf("invalid YAML: %w", err)
	}
	if strings.TrimSpace(fm.Name) == "" {
		return skillMetadata{}, fmt.Errorf("missing field `name`")
	}
	if strings.TrimSpace(fm.Description) == "" {
		return skillMetadata{}, fmt.Errorf("missing field `description`")
	}

	return skillMetadata{
		Name:        strings.TrimSpace(fm.Name),
		Description: strings.TrimSpace(fm.Description),
		Path:        filepath.Clean(path),
		Body:        strings.TrimSpace(strings.Join(lines[end+1:], "\n")),
	}, nil
}

// SkillExecuteTool backs skill-execute: the model names a skill by its
// frontmatter `name`, and the tool hands back the skill's body as
// instructions for the model to follow in its own next turn. There is no
// separate interpreter: a skill is a reusable system-prompt fragment, not a
// program, so "executing" one means surfacing its text the way an imported
// file's contents get surfaced to ReadFileTool.
type SkillExecuteTool struct {
	config *Config
	root   string
}

type skillExecuteInput struct {
	Name string `json:"name"`
}

func (t SkillExecuteTool) Name() string { return "skill-execute" }

func (t SkillExecuteTool) Description() string {
	return "Loads a named skill from the project's .skills directory and returns its instructions. The input should be a JSON object with a 'name' field. Call with an empty name to list available skills."
}

func (t SkillExecuteTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "description": "Name of the skill to execute, as declared in its SKILL.md frontmatter"},
		},
	}
}

func (t SkillExecuteTool) Call(ctx context.Context, input string) (string, error) {
	var params skillExecuteInput
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &params); err != nil {
			return "", fmt.Errorf("invalid input: %w", err)
		}
	}

	skillsDir := ".skills"
	if t.config != nil && t.config.SkillsDir != "" {
		skillsDir = t.config.SkillsDir
	}
	root := t.root
	if root == "" {
		root = "."
	}

	skills, err := discoverSkills(root, skillsDir)
	if err != nil {
		return "", fmt.Errorf("loading skills: %w", err)
	}

	if strings.TrimSpace(params.Name) == "" {
		summaries := make([]map[string]string, 0, len(skills))
		for _, sk := range skills {
			summaries = append(summaries, map[string]string{"name": sk.Name, "description": sk.Description})
		}
		out, _ := json.Marshal(map[string]any{"skills": summaries})
		return string(out), nil
	}

	for _, sk := range skills {
		if sk.Name == params.Name {
			out, _ := json.Marshal(map[string]any{
				"name":         sk.Name,
				"description":  sk.Description,
				"instructions": sk.Body,
			})
			return string(out), nil
		}
	}
	return "", fmt.Errorf("no skill named %q found in %s", params.Name, filepath.Join(root, skillsDir))
}

func (t SkillExecuteTool) Format(input, result string, err error) string {
	if err != nil {
		return fmt.Sprintf("Skill\nError: %v", err)
	}
	var parsed struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal([]byte(result), &parsed)
	if parsed.Name == "" {
		return "Skill\n" + treeFinalPrefix + "listed available skills"
	}
	return "Skill: " + parsed.Name + "\n" + treeFinalPrefix + "loaded instructions"
}

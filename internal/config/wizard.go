package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
)

// projectTypePatterns maps marker files to human-readable project types and
// a recommended include glob.
var projectTypePatterns = map[string]struct {
	Name    string
	Include string
}{
	"go.mod":           {Name: "Go", Include: "**/*.go"},
	"package.json":     {Name: "Node.js/TypeScript", Include: "**/*.{js,ts,jsx,tsx}"},
	"requirements.txt": {Name: "Python", Include: "**/*.py"},
	"pyproject.toml":   {Name: "Python", Include: "**/*.py"},
	"Cargo.toml":       {Name: "Rust", Include: "**/*.rs"},
	"pom.xml":          {Name: "Java", Include: "**/*.java"},
	"Gemfile":          {Name: "Ruby", Include: "**/*.rb"},
}

// detectProjectType checks the current directory for well-known project
// markers.
func detectProjectType() (name, include string) {
	for marker, info := range projectTypePatterns {
		matches, _ := filepath.Glob(marker)
		if len(matches) > 0 {
			return info.Name, info.Include
		}
	}
	return "", ""
}

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to .codectx.yml.
func RunWizard() (*Config, error) {
	fmt.Println("Welcome to codectx! Let's configure your project.")
	fmt.Println()

	projType, defaultInclude := detectProjectType()
	if projType != "" {
		fmt.Printf("Detected project type: %s\n\n", projType)
	}

	cfg := DefaultConfig()

	strategyPrompt := promptui.Select{
		Label: "Select embedding strategy",
		Items: []string{
			"local  — Ollama on this machine, no API key needed",
			"remote — OpenAI embeddings, higher quality",
		},
	}
	strategyIdx, _, err := strategyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	if strategyIdx == 1 {
		cfg.EmbeddingStrategy = "remote"
	}

	storePrompt := promptui.Select{
		Label: "Select vector store",
		Items: []string{
			"chromem — embedded, persisted under the data dir",
			"qdrant  — external Qdrant server",
		},
	}
	storeIdx, _, err := storePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("store selection: %w", err)
	}
	if storeIdx == 1 {
		cfg.Store = StoreQdrant

		urlPrompt := promptui.Prompt{
			Label:   "Qdrant URL",
			Default: cfg.QdrantURL,
		}
		if cfg.QdrantURL, err = urlPrompt.Run(); err != nil {
			return nil, fmt.Errorf("qdrant url: %w", err)
		}
	}

	providerPrompt := promptui.Select{
		Label: "Select LLM provider for answering queries",
		Items: []string{"ollama", "anthropic", "openai"},
	}
	_, cfg.LLMProvider, err = providerPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("provider selection: %w", err)
	}
	switch cfg.LLMProvider {
	case "anthropic":
		cfg.LLMModel = "claude-sonnet-4-5-20250929"
	case "openai":
		cfg.LLMModel = "gpt-4o"
	}

	includePrompt := promptui.Prompt{
		Label:   "Include patterns (comma-separated globs, blank for defaults)",
		Default: defaultInclude,
	}
	includeStr, err := includePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("include patterns: %w", err)
	}
	cfg.Include = splitAndTrim(includeStr)

	if cfg.EmbeddingStrategy == "remote" && os.Getenv("OPENAI_API_KEY") == "" {
		fmt.Println("\nNote: Set OPENAI_API_KEY in your environment before indexing.")
	}
	if envVar := apiKeyEnvVar(cfg.LLMProvider); envVar != "" && os.Getenv(envVar) == "" {
		fmt.Printf("Note: Set %s in your environment before running codectx query.\n", envVar)
	}

	if err := cfg.Save(DefaultConfigPath); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", DefaultConfigPath)
	return cfg, nil
}

// apiKeyEnvVar returns the conventional environment variable name for the
// API key of the given provider.
func apiKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "openai":
		return "OPENAI_API_KEY"
	default:
		return ""
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		if token := strings.TrimSpace(part); token != "" {
			result = append(result, token)
		}
	}
	return result
}

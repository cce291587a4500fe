package router

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultKeywordTable is the reference keyword table for the
// capability tags the registry accepts. Deployments override or
// extend it via LoadKeywordTable.
func DefaultKeywordTable() KeywordTable {
	return KeywordTable{
		"finance":         {"stock", "price", "market", "portfolio", "invest", "ticker", "earnings"},
		"web_search":      {"search", "find", "look up", "what is", "latest", "news about"},
		"code_generation": {"write code", "generate", "script", "function", "program", "build a", "exe"},
		"identity":        {"who are you", "what can you do", "your capabilities"},
		"news":            {"news", "headline", "breaking", "today's"},
		"memory":          {"remember", "recall", "what did i say", "earlier"},
	}
}

// LoadKeywordTable reads a capability→keywords mapping from a YAML
// file.
func LoadKeywordTable(path string) (KeywordTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc yamlKeywordTable
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return KeywordTable(doc.Capabilities), nil
}

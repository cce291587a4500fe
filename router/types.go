// Package router implements the Intent Router: a strictly ordered
// five-stage classification pipeline.
package router

import "regexp"

// CapabilityResolver maps a capability tag to the ordered handler ids
// that declare it, backed by the plugin registry's find-by-capability
// lookup.
type CapabilityResolver interface {
	FindByCapability(tag string) []string
}

// KeywordTable maps a capability tag to the keywords/patterns that
// signal it. Loaded from YAML (gopkg.in/yaml.v3) or built in code via
// DefaultKeywordTable.
type KeywordTable map[string][]string

// yamlKeywordTable is the on-disk shape for LoadKeywordTable.
type yamlKeywordTable struct {
	Capabilities map[string][]string `yaml:"capabilities"`
}

// compiledIdentityPatterns are regexes matching self-referential
// queries: questions about the assistant's own nature, capabilities,
// or self-modification.
var compiledIdentityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bwhat (can|do) you do\b`),
	regexp.MustCompile(`(?i)\bwho are you\b`),
	regexp.MustCompile(`(?i)\bwhat are you\b`),
	regexp.MustCompile(`(?i)\bhow do you work\b`),
	regexp.MustCompile(`(?i)\byour (capabilities|abilities|limitations)\b`),
	regexp.MustCompile(`(?i)\b(rewrite|modify|update) (yourself|your own code)\b`),
	regexp.MustCompile(`(?i)\bare you (an? )?(ai|bot|assistant|human)\b`),
}

var affirmativeWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true,
	"okay": true, "please": true, "go ahead": true, "do it": true,
	"affirmative": true, "correct": true,
}

var negativeWords = map[string]bool{
	"no": true, "nope": true, "nah": true, "negative": true, "cancel": true,
	"stop": true, "never mind": true, "nevermind": true,
}

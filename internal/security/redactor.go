package security

import (
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKey matches configuration keys whose values are credentials.
var secretKey = regexp.MustCompile(`(?i)(secret|token|password|pass|api_key)$`)

// Redactor replaces credentials in strings. It knows the shape of
// Anthropic keys and HTTP authorization values, plus any literal
// registered at runtime. Safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// DefaultPatterns matches Anthropic API keys and the credential part of
// Bearer and Basic authorization values.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`sk-ant-[a-zA-Z0-9_\-]{20,}`),
		regexp.MustCompile(`(?i)\b(?:bearer|basic) [a-zA-Z0-9._~+/\-]{8,}=*`),
	}
}

// AddLiteral registers a value to redact wherever it appears. Values
// shorter than four bytes are ignored; they would mangle ordinary text.
func (r *Redactor) AddLiteral(secret string) {
	if len(secret) < 4 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.literals = append(r.literals, secret)
}

// Redact returns s with every known secret replaced by RedactPlaceholder.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	for _, p := range patterns {
		s = p.ReplaceAllString(s, RedactPlaceholder)
	}
	return s
}

// SecretsFromNode collects credential values from a module configuration
// node: scalars under secret-named keys, and the environment value named
// by any "<secret>_env" key.
func SecretsFromNode(node *yaml.Node) []string {
	var out []string
	walkSecrets(node, &out)
	return out
}

func walkSecrets(node *yaml.Node, out *[]string) {
	if node == nil {
		return
	}
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, n := range node.Content {
			walkSecrets(n, out)
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i].Value, node.Content[i+1]
			if val.Kind != yaml.ScalarNode {
				walkSecrets(val, out)
				continue
			}
			switch {
			case secretKey.MatchString(key):
				if val.Value != "" {
					*out = append(*out, val.Value)
				}
			case strings.HasSuffix(key, "_env") && secretKey.MatchString(strings.TrimSuffix(key, "_env")):
				if v := os.Getenv(val.Value); v != "" {
					*out = append(*out, v)
				}
			}
		}
	}
}

package blocklist

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseRules reads blocklist rules from r, one per line. Blank lines and
// lines starting with '#' are skipped. A line ending in '*' is a prefix
// rule anchored at the path before the star; anything else is an exact
// path rule.
func ParseRules(r io.Reader) ([]Rule, error) {
	var rules []Rule

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, "*") {
			rules = append(rules, Rule{Kind: RulePrefix, Path: strings.TrimSuffix(line, "*")})
			continue
		}
		rules = append(rules, Rule{Kind: RuleExact, Path: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading blocklist: %w", err)
	}

	return rules, nil
}

// Load builds a Blocklist from the rule file at path.
func Load(path string) (*Blocklist, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening blocklist %s: %w", path, err)
	}
	defer f.Close()

	rules, err := ParseRules(f)
	if err != nil {
		return nil, err
	}
	return New(rules)
}

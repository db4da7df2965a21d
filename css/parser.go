// Package css is a small stylesheet reader used to inspect bundled styles.
package css

import (
	"bytes"
	"strings"

	parse "github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"
	"go.uber.org/zap"
)

// Rule is a single ruleset, grouped selectors are kept together.
type Rule struct {
	Selectors  []string
	Properties map[string]string
}

// Stylesheet is a list of rules in source order. Rules inside at-rule blocks
// are not included.
type Stylesheet struct {
	Rules    []Rule
	Warnings []string
}

// Parser parses CSS stylesheets into rules.
type Parser struct {
	log *zap.Logger
}

// NewParser creates a new CSS parser.
func NewParser(log *zap.Logger) *Parser {
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{log: log.Named("css-parser")}
}

// Parse parses CSS text into a Stylesheet. Source identifies what's being
// parsed for debug logging.
func (p *Parser) Parse(data []byte, source string) *Stylesheet {
	sheet := &Stylesheet{}
	p.log.Debug("Parsing CSS", zap.String("source", source), zap.Int("bytes", len(data)))

	parser := css.NewParser(parse.NewInput(bytes.NewReader(data)), false)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			// End of input or error
			if err := parser.Err(); err != nil && err.Error() != "EOF" {
				sheet.Warnings = append(sheet.Warnings, err.Error())
				p.log.Debug("CSS parse error", zap.String("source", source), zap.Error(err))
			}
			return sheet

		case css.BeginAtRuleGrammar:
			p.skipAtRuleBlock(parser)
			p.log.Debug("Skipping @-rule", zap.String("rule", string(data)))

		case css.BeginRulesetGrammar:
			selectors := parseSelectors(data, parser.Values())
			props := p.parseDeclarations(parser)
			if len(selectors) > 0 {
				sheet.Rules = append(sheet.Rules, Rule{Selectors: selectors, Properties: props})
			}
		}
	}
}

// Property returns value of property from the last rule matching selector
// exactly.
func (s *Stylesheet) Property(selector, property string) (string, bool) {
	var (
		val   string
		found bool
	)
	for _, r := range s.Rules {
		for _, sel := range r.Selectors {
			if sel != selector {
				continue
			}
			if v, ok := r.Properties[property]; ok {
				val, found = v, true
			}
		}
	}
	return val, found
}

func parseSelectors(data []byte, values []css.Token) []string {
	var sb strings.Builder
	sb.Write(data)
	for _, v := range values {
		sb.Write(v.Data)
	}

	var selectors []string
	for s := range strings.SplitSeq(sb.String(), ",") {
		// collapse whitespace so "a   b" and "a\nb" compare equal
		if s = strings.Join(strings.Fields(s), " "); s != "" {
			selectors = append(selectors, s)
		}
	}
	return selectors
}

// parseDeclarations parses property declarations until EndRulesetGrammar.
func (p *Parser) parseDeclarations(parser *css.Parser) map[string]string {
	props := make(map[string]string)
	for {
		gt, _, data := parser.Next()
		switch gt {
		case css.ErrorGrammar, css.EndRulesetGrammar:
			return props

		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			var sb strings.Builder
			for _, t := range parser.Values() {
				if t.TokenType == css.WhitespaceToken {
					sb.WriteByte(' ')
					continue
				}
				sb.Write(t.Data)
			}
			props[strings.ToLower(string(data))] = strings.TrimSpace(sb.String())
		}
	}
}

func (p *Parser) skipAtRuleBlock(parser *css.Parser) {
	depth := 1
	for depth > 0 {
		gt, _, _ := parser.Next()
		switch gt {
		case css.ErrorGrammar:
			return
		case css.BeginAtRuleGrammar, css.BeginRulesetGrammar:
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
		}
	}
}

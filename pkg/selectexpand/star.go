package selectexpand

import (
	"github.com/lemonberrylabs/odata-uri-parser/pkg/edm"
	"github.com/lemonberrylabs/odata-uri-parser/pkg/expr"
)

// expandStar replaces a '*' or '*/$ref' term with one term per navigation
// property of parent. Navigation properties that are also listed explicitly
// keep only their explicit term.
func (p *Parser) expandStar(terms []*expr.ExpandTermToken, parent *edm.StructuredType) []*expr.ExpandTermToken {
	if parent == nil {
		return terms
	}
	explicit := map[string]bool{}
	starAt := -1
	for i, t := range terms {
		if isStar(t.Path) {
			starAt = i
			continue
		}
		explicit[t.Path.Identifier()] = true
	}
	if starAt < 0 {
		return terms
	}

	star := terms[starAt]
	_, ref := expr.Last(star.Path).(*expr.SystemToken)
	var synthetic []*expr.ExpandTermToken
	for _, nav := range parent.AllNavigations() {
		if explicit[nav.Name] {
			continue
		}
		path := &expr.NonSystemToken{Name: nav.Name}
		if ref {
			path.NextToken = &expr.SystemToken{Name: "$ref"}
		}
		synthetic = append(synthetic, &expr.ExpandTermToken{Path: path, Levels: star.Levels})
	}
	p.logger.Debug("star expansion", "type", parent.FullName(), "terms", len(synthetic), "explicit", len(explicit))

	out := make([]*expr.ExpandTermToken, 0, len(terms)-1+len(synthetic))
	out = append(out, terms[:starAt]...)
	out = append(out, synthetic...)
	out = append(out, terms[starAt+1:]...)
	return out
}

package filter

import (
	"regexp"
	"strings"
)

// EntityLabel classifies a recognized span.
type EntityLabel string

const (
	LabelOrganization EntityLabel = "ORG"
	LabelMoney        EntityLabel = "MONEY"
)

// Entity is one recognized span.
type Entity struct {
	Text  string
	Label EntityLabel
}

// Recognizer extracts named entities from plain text. Implementations must
// be deterministic; a model-backed recognizer can be slotted in behind this
// interface.
type Recognizer interface {
	Entities(text string) []Entity
}

// DensityFilter admits text with enough concrete corporate or monetary
// substance to be worth a model call.
type DensityFilter struct {
	recognizer     Recognizer
	orgThreshold   int
	moneyThreshold int
}

// NewDensityFilter builds the filter with configuration-driven thresholds.
func NewDensityFilter(recognizer Recognizer, orgThreshold, moneyThreshold int) *DensityFilter {
	return &DensityFilter{
		recognizer:     recognizer,
		orgThreshold:   orgThreshold,
		moneyThreshold: moneyThreshold,
	}
}

// Admit counts ORG and MONEY entities separately and admits when either
// count reaches its threshold. Union, not intersection.
func (f *DensityFilter) Admit(text string) bool {
	orgs, money := 0, 0
	for _, ent := range f.recognizer.Entities(text) {
		switch ent.Label {
		case LabelOrganization:
			orgs++
		case LabelMoney:
			money++
		}
	}
	return orgs >= f.orgThreshold || money >= f.moneyThreshold
}

// moneyExpr matches monetary amounts: "$50M", "USD 1.2 billion", "€3,400",
// "50 million dollars".
var moneyExpr = regexp.MustCompile(
	`(?i)(?:[$€£¥]|usd|eur|gbp|jpy)\s?\d[\d,.]*(?:\s?(?:thousand|million|billion|trillion|[kmbt]))?` +
		`|\d[\d,.]*\s?(?:thousand|million|billion|trillion)?\s?(?:dollars|euros|pounds|yen)`)

// orgSpanExpr matches runs of capitalized tokens (allowing "&" and "of"
// connectors) as organization candidates.
var orgSpanExpr = regexp.MustCompile(`(?:[A-Z][\w&.-]*)(?:\s+(?:of|&|and)\s+[A-Z][\w&.-]*|\s+[A-Z][\w&.-]*)*`)

// Corporate designators that promote a capitalized span to an organization.
var orgDesignators = map[string]struct{}{
	"inc": {}, "inc.": {}, "corp": {}, "corp.": {}, "corporation": {},
	"co": {}, "co.": {}, "ltd": {}, "ltd.": {}, "llc": {}, "plc": {},
	"group": {}, "holdings": {}, "bank": {}, "capital": {}, "partners": {},
	"ag": {}, "sa": {}, "gmbh": {}, "kk": {}, "technologies": {},
	"systems": {}, "industries": {}, "ventures": {}, "fund": {},
}

// Well-known institution names recognized without a designator.
var orgLexicon = map[string]struct{}{
	"fed": {}, "federal reserve": {}, "treasury": {}, "sec": {}, "ecb": {},
	"imf": {}, "boj": {}, "opec": {}, "nasdaq": {}, "nyse": {},
	"white house": {}, "congress": {}, "world bank": {},
}

// LexicalRecognizer is the default deterministic recognizer: currency
// expressions for MONEY and designator- or lexicon-backed capitalized
// spans for ORG. No external I/O.
type LexicalRecognizer struct{}

// NewLexicalRecognizer returns the built-in recognizer.
func NewLexicalRecognizer() *LexicalRecognizer {
	return &LexicalRecognizer{}
}

// Entities extracts ORG and MONEY spans from text.
func (r *LexicalRecognizer) Entities(text string) []Entity {
	var entities []Entity

	for _, m := range moneyExpr.FindAllString(text, -1) {
		entities = append(entities, Entity{Text: strings.TrimSpace(m), Label: LabelMoney})
	}

	seen := make(map[string]struct{})
	for _, span := range orgSpanExpr.FindAllString(text, -1) {
		span = strings.TrimSpace(span)
		if span == "" {
			continue
		}
		if _, dup := seen[span]; dup {
			continue
		}
		if isOrganization(span) {
			seen[span] = struct{}{}
			entities = append(entities, Entity{Text: span, Label: LabelOrganization})
		}
	}

	return entities
}

func isOrganization(span string) bool {
	lower := strings.ToLower(span)
	if _, ok := orgLexicon[lower]; ok {
		return true
	}

	fields := strings.Fields(lower)
	if len(fields) == 0 {
		return false
	}
	// A designator anywhere in the span marks a company name.
	for _, f := range fields {
		if _, ok := orgDesignators[f]; ok {
			return true
		}
	}
	// Multi-word spans ending in a lexicon entry ("New York Fed").
	last := fields[len(fields)-1]
	if _, ok := orgLexicon[last]; ok {
		return true
	}
	return false
}

// Package specialty maps colloquial symptom and procedure terms to canonical
// specialty tags.
package specialty

import "strings"

// Term is one colloquial → canonical mapping.
type Term struct {
	Colloquial string
	Canonical  string
}

// 顺序即优先级：扫描全文时第一个命中的词生效，而不是最长匹配
var defaultTerms = []Term{
	{"正畸", "正畸"},
	{"矫正", "正畸"},
	{"牙齿矫正", "正畸"},
	{"牙矫正", "正畸"},
	{"种植", "种植"},
	{"种植牙", "种植"},
	{"补牙", "补牙"},
	{"根管", "根管"},
	{"根管治疗", "根管"},
	{"牙周", "牙周"},
	{"牙周病", "牙周"},
	{"口腔内科", "口腔内科"},
	{"口腔外科", "口腔外科"},
	{"儿童口腔", "儿童口腔"},
	{"口腔黏膜", "口腔黏膜"},
	{"龋齿", "龋齿"},
	{"蛀牙", "龋齿"},
	{"牙髓", "牙髓"},
	{"拔牙", "拔牙"},
	{"洗牙", "洗牙"},
	{"美白", "美白"},
}

type Mapper struct {
	terms []Term
}

// NewMapper returns a mapper over the built-in dictionary, or over terms when given.
func NewMapper(terms ...Term) *Mapper {
	if len(terms) == 0 {
		terms = defaultTerms
	}
	return &Mapper{terms: terms}
}

// MatchText returns the canonical tag of the first dictionary term that
// occurs anywhere in text.
func (m *Mapper) MatchText(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	for _, t := range m.terms {
		if strings.Contains(text, t.Colloquial) {
			return t.Canonical, true
		}
	}
	return "", false
}

// LookupExact matches keyword against dictionary keys only.
func (m *Mapper) LookupExact(keyword string) (string, bool) {
	for _, t := range m.terms {
		if t.Colloquial == keyword {
			return t.Canonical, true
		}
	}
	return "", false
}

// MatchKeyword tries an exact key first, then containment in either direction.
func (m *Mapper) MatchKeyword(keyword string) (string, bool) {
	if keyword == "" {
		return "", false
	}
	if canonical, ok := m.LookupExact(keyword); ok {
		return canonical, true
	}
	for _, t := range m.terms {
		if strings.Contains(keyword, t.Colloquial) || strings.Contains(t.Colloquial, keyword) {
			return t.Canonical, true
		}
	}
	return "", false
}

// Resolve scans the whole text first and only then the individual keywords.
func (m *Mapper) Resolve(text string, keywords []string) (string, bool) {
	if canonical, ok := m.MatchText(text); ok {
		return canonical, true
	}
	for _, kw := range keywords {
		if canonical, ok := m.MatchKeyword(kw); ok {
			return canonical, true
		}
	}
	return "", false
}

package utils

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

// 中文连续字符、数字串、英文字母串分别作为独立词元
var (
	tokenPattern = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]+|\d+|[a-zA-Z]+`)
	cjkPattern   = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]+`)
)

var stopWords = toSet(
	"我", "了", "的", "是", "在", "有", "和", "就", "不", "人", "都", "一", "一个",
	"上", "也", "很", "到", "说", "要", "去", "你", "会", "着", "没有", "看", "好",
	"自己", "这", "吗", "呢", "啊", "呀", "吧", "么", "什么", "怎么", "如何",
	"为什么", "怎么办", "能", "可以", "应该", "需要", "想", "请", "帮", "给",
)

// 医生检索额外过滤的词
var doctorStopWords = toSet("医生", "擅长")

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Tokenize splits text into CJK runs, digit runs and Latin-letter runs.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

// ExtractKeywords returns tokens of at least two characters that are not
// stop words, in order of appearance.
func ExtractKeywords(text string) []string {
	return extract(text, nil)
}

// ExtractDoctorKeywords is ExtractKeywords with doctor-search stop words
// ("医生", "擅长") also removed.
func ExtractDoctorKeywords(text string) []string {
	return extract(text, doctorStopWords)
}

func extract(text string, extra map[string]struct{}) []string {
	var keywords []string
	for _, tok := range Tokenize(text) {
		if utf8.RuneCountInString(tok) < 2 {
			continue
		}
		if _, ok := stopWords[tok]; ok {
			continue
		}
		if _, ok := extra[tok]; ok {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// KeywordsOrQuery never returns an empty set for non-empty input: when no
// keyword survives normalization the whole text is the single keyword.
func KeywordsOrQuery(text string) []string {
	keywords := ExtractKeywords(text)
	if len(keywords) == 0 && text != "" {
		return []string{text}
	}
	return keywords
}

// CJKWords returns the runs of Chinese characters in text.
func CJKWords(text string) []string {
	return cjkPattern.FindAllString(text, -1)
}

// LooksLikePersonName reports whether tok is 2 to 4 CJK characters.
func LooksLikePersonName(tok string) bool {
	n := utf8.RuneCountInString(tok)
	if n < 2 || n > 4 {
		return false
	}
	for _, r := range tok {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return true
}

// PersonNameTokens returns the CJK runs of text that look like person names.
func PersonNameTokens(text string) []string {
	var names []string
	for _, w := range CJKWords(text) {
		if LooksLikePersonName(w) {
			names = append(names, w)
		}
	}
	return names
}

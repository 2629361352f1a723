package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/adapters"
	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/model"
)

var ErrNoTitle = errors.New("markdown article has no level-1 heading")

var (
	patternPrefixes = []string{"问题：", "问题:", "pattern:", "Pattern:"}
	tagPrefixes     = []string{"标签：", "标签:", "tags:", "Tags:"}
)

// ParseArticle reads one curated markdown article. The first level-1
// heading is the title, a "问题：" line the question pattern and a "标签："
// line the tags; every other block becomes content.
func ParseArticle(source []byte) (model.KnowledgeArticle, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var article model.KnowledgeArticle
	var content []string
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			heading := inlineText(node, source)
			if node.Level == 1 && article.Title == "" {
				article.Title = heading
				continue
			}
			content = append(content, heading)
		case *ast.Paragraph:
			var rest []string
			for _, line := range strings.Split(inlineText(node, source), "\n") {
				line = strings.TrimSpace(line)
				if v, ok := cutAny(line, patternPrefixes); ok {
					article.QuestionPattern = v
					continue
				}
				if v, ok := cutAny(line, tagPrefixes); ok {
					article.Tags = v
					continue
				}
				if line != "" {
					rest = append(rest, line)
				}
			}
			if len(rest) > 0 {
				content = append(content, strings.Join(rest, "\n"))
			}
		case *ast.List:
			var items []string
			for item := node.FirstChild(); item != nil; item = item.NextSibling() {
				if t := inlineText(item, source); t != "" {
					items = append(items, "- "+t)
				}
			}
			if len(items) > 0 {
				content = append(content, strings.Join(items, "\n"))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.Blockquote:
			if raw := rawLines(node, source); raw != "" {
				content = append(content, raw)
			}
		}
	}

	if article.Title == "" {
		return model.KnowledgeArticle{}, ErrNoTitle
	}
	article.Content = strings.Join(content, "\n\n")
	article.IsActive = true
	return article, nil
}

func cutAny(line string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if v, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// inlineText 拼接节点下所有文本片段，软换行保留为 \n
func inlineText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func rawLines(n ast.Node, source []byte) string {
	if n.Type() != ast.TypeBlock {
		return ""
	}
	var b strings.Builder
	if n.Kind() == ast.KindBlockquote {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			b.WriteString(inlineText(c, source))
			b.WriteByte('\n')
		}
		return strings.TrimSpace(b.String())
	}
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	return strings.TrimSpace(b.String())
}

// ObjectSource lists and reads markdown objects.
type ObjectSource interface {
	ListMarkdown(ctx context.Context, prefix string) ([]string, error)
	ReadObject(ctx context.Context, key string) ([]byte, error)
}

type ImportReport struct {
	Objects   int
	Changed   []int64
	Unchanged int
	Skipped   []string
	Embedding *GenerateReport
}

type Importer struct {
	source    ObjectSource
	store     adapters.KnowledgeStore
	generator *EmbeddingGenerator
}

// NewImporter builds an importer; generator may be nil when embeddings are
// never regenerated on import.
func NewImporter(source ObjectSource, store adapters.KnowledgeStore, generator *EmbeddingGenerator) *Importer {
	return &Importer{source: source, store: store, generator: generator}
}

// Import upserts every markdown object under prefix by title. Objects that
// fail to parse are skipped. With embed set, changed articles get fresh
// embeddings.
func (im *Importer) Import(ctx context.Context, prefix string, embed bool) (ImportReport, error) {
	keys, err := im.source.ListMarkdown(ctx, prefix)
	if err != nil {
		return ImportReport{}, err
	}
	log := logger.GetLogger().With(zap.String("prefix", prefix))

	report := ImportReport{Objects: len(keys)}
	for _, key := range keys {
		data, err := im.source.ReadObject(ctx, key)
		if err != nil {
			return report, err
		}
		article, err := ParseArticle(data)
		if err != nil {
			log.Warn("跳过无法解析的知识文档", zap.String("key", key), zap.Error(err))
			report.Skipped = append(report.Skipped, key)
			continue
		}
		id, changed, err := im.store.UpsertArticle(ctx, article)
		if err != nil {
			return report, fmt.Errorf("upsert %s: %w", key, err)
		}
		if changed {
			report.Changed = append(report.Changed, id)
		} else {
			report.Unchanged++
		}
	}
	log.Info("知识文档导入完成",
		zap.Int("objects", report.Objects),
		zap.Int("changed", len(report.Changed)),
		zap.Int("skipped", len(report.Skipped)))

	if embed && im.generator != nil && len(report.Changed) > 0 {
		gen, err := im.generator.Generate(ctx, GenerateRequest{ArticleIDs: report.Changed})
		if err != nil {
			return report, err
		}
		report.Embedding = &gen
	}
	return report, nil
}

package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ZaguanLabs/transcache"
	"golang.org/x/net/html"
)

// DefaultIgnoredTags are elements whose text is never translated.
var DefaultIgnoredTags = []string{"script", "style", "code", "pre", "textarea"}

// HTMLProcessor extracts and applies translations to HTML content.
type HTMLProcessor struct {
	ignoredTags map[string]bool
}

// NewHTMLProcessor creates a new HTML processor with default ignored tags.
func NewHTMLProcessor() *HTMLProcessor {
	return NewHTMLProcessorWithIgnoredTags(DefaultIgnoredTags)
}

// NewHTMLProcessorWithIgnoredTags creates a new HTML processor with custom ignored tags.
func NewHTMLProcessorWithIgnoredTags(tags []string) *HTMLProcessor {
	ignored := make(map[string]bool, len(tags))
	for _, tag := range tags {
		ignored[strings.ToLower(tag)] = true
	}
	return &HTMLProcessor{
		ignoredTags: ignored,
	}
}

// Document is a parsed HTML document ready for Apply.
type Document struct {
	doc *goquery.Document
	// full is set when the input carried its own <html> element; otherwise
	// only the body's children are rendered back.
	full bool
}

// Extract parses HTML and extracts translatable text nodes, one per unique text.
func (p *HTMLProcessor) Extract(content string) (*Document, []TextNode, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, nil, &transcache.ProcessorError{
			Message:     "failed to parse HTML",
			Cause:       err,
			ContentType: "html",
		}
	}

	var nodes []TextNode
	seen := make(map[string]bool)

	p.eachText(doc, func(n *html.Node, trimmed string) {
		hash := transcache.HashText(trimmed)
		if seen[hash] {
			return
		}
		seen[hash] = true

		node := TextNode{
			ID:       fmt.Sprintf("node-%d", len(nodes)),
			Text:     trimmed,
			Hash:     hash,
			Context:  buildContext(n),
			Metadata: map[string]string{},
		}
		if n.Parent != nil {
			node.Metadata["parent_tag"] = n.Parent.Data
		}
		nodes = append(nodes, node)
	})

	full := strings.Contains(strings.ToLower(content), "<html")
	return &Document{doc: doc, full: full}, nodes, nil
}

// Apply replaces every text node whose hash has a translation and renders the document.
func (p *HTMLProcessor) Apply(d *Document, translations map[string]string) (string, error) {
	if d == nil || d.doc == nil {
		return "", &transcache.ProcessorError{
			Message:     "invalid parsed content",
			ContentType: "html",
		}
	}

	p.eachText(d.doc, func(n *html.Node, trimmed string) {
		if translated, ok := translations[transcache.HashText(trimmed)]; ok {
			n.Data = preserveWhitespace(n.Data, translated)
		}
	})

	var out string
	var err error
	if d.full {
		out, err = d.doc.Html()
	} else {
		out, err = d.doc.Find("body").Html()
	}
	if err != nil {
		return "", &transcache.ProcessorError{
			Message:     "failed to serialize HTML",
			Cause:       err,
			ContentType: "html",
		}
	}
	return out, nil
}

// SetLanguage sets lang and dir on the <html> element of full documents.
func (p *HTMLProcessor) SetLanguage(d *Document, lang string) {
	if d == nil || !d.full {
		return
	}
	d.doc.Find("html").
		SetAttr("lang", transcache.ToHTMLLang(lang)).
		SetAttr("dir", transcache.GetDirection(lang))
}

// Translate translates content from sourceLang to targetLang with one batch
// call. Segments that fail to translate keep their original text.
func (p *HTMLProcessor) Translate(ctx context.Context, t BatchTranslator, content, sourceLang, targetLang string) (*ProcessedContent, error) {
	doc, nodes, err := p.Extract(content)
	if err != nil {
		return nil, err
	}

	out := &ProcessedContent{
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		Nodes:          len(nodes),
	}

	translations := make(map[string]string, len(nodes))
	if len(nodes) > 0 {
		reqs := make([]transcache.TranslationRequest, len(nodes))
		for i, node := range nodes {
			reqs[i] = transcache.TranslationRequest{
				Text:           node.Text,
				SourceLanguage: sourceLang,
				TargetLanguage: targetLang,
				Context:        node.Context,
			}
		}

		batch, err := t.TranslateBatch(ctx, reqs)
		if err != nil {
			return nil, &transcache.TranslationError{Message: "html batch translation failed", Cause: err}
		}
		out.ProcessingTimeMs = batch.TotalProcessingTimeMs

		for i, r := range batch.Results {
			if r.Failed() {
				out.Failed++
				continue
			}
			if r.Cached {
				out.Cached++
			}
			translations[nodes[i].Hash] = r.TranslatedText
		}
	}

	p.SetLanguage(doc, targetLang)
	out.Content, err = p.Apply(doc, translations)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ContentType returns "html".
func (p *HTMLProcessor) ContentType() string {
	return "html"
}

// eachText calls fn for every non-blank text node outside ignored elements.
func (p *HTMLProcessor) eachText(doc *goquery.Document, fn func(n *html.Node, trimmed string)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if p.ignoredTags[strings.ToLower(n.Data)] {
				return
			}
			for _, attr := range n.Attr {
				if attr.Key == "data-no-translate" {
					return
				}
			}
		}

		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				fn(n, trimmed)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	for _, n := range doc.Nodes {
		walk(n)
	}
}

// buildContext creates a disambiguation context string for a text node.
func buildContext(n *html.Node) string {
	if n.Parent == nil {
		return ""
	}

	var parts []string
	parent := n.Parent
	tag := parent.Data

	var classAttr, idAttr string
	for _, attr := range parent.Attr {
		switch attr.Key {
		case "class":
			classAttr = attr.Val
		case "id":
			idAttr = attr.Val
		}
	}

	switch {
	case classAttr != "":
		parts = append(parts, fmt.Sprintf("in <%s class=%q>", tag, classAttr))
	case idAttr != "":
		parts = append(parts, fmt.Sprintf("in <%s id=%q>", tag, idAttr))
	default:
		parts = append(parts, fmt.Sprintf("in <%s>", tag))
	}

	// Up to three sibling texts
	var siblings []string
	for sib := parent.FirstChild; sib != nil && len(siblings) < 3; sib = sib.NextSibling {
		if sib == n || sib.Type != html.TextNode {
			continue
		}
		if text := strings.TrimSpace(sib.Data); text != "" && len(text) < 100 {
			siblings = append(siblings, text)
		}
	}
	if len(siblings) > 0 {
		parts = append(parts, "with: "+strings.Join(siblings, ", "))
	}

	// Up to three ancestors, outermost first
	var ancestors []string
	for a, i := parent.Parent, 0; a != nil && i < 3; a, i = a.Parent, i+1 {
		if a.Type == html.ElementNode && a.Data != "html" && a.Data != "body" {
			ancestors = append([]string{a.Data}, ancestors...)
		}
	}
	if len(ancestors) > 0 {
		parts = append(parts, "inside: "+strings.Join(ancestors, " > "))
	}

	return strings.Join(parts, " | ")
}

// preserveWhitespace preserves the original leading/trailing whitespace.
func preserveWhitespace(original, translated string) string {
	leadingLen := len(original) - len(strings.TrimLeft(original, " \t\n\r"))
	trailingLen := len(original) - len(strings.TrimRight(original, " \t\n\r"))
	if leadingLen == len(original) {
		return original
	}
	return original[:leadingLen] + translated + original[len(original)-trailingLen:]
}

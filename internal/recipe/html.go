package recipe

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
)

// dropped entirely, content included
var strippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Meta:     true,
	atom.Link:     true,
}

var keptAttributes = map[string]bool{
	"href": true,
	"src":  true,
	"alt":  true,
}

var (
	ingredientHeading  = regexp.MustCompile(`(?i)^\s*ingredients?\b`)
	instructionHeading = regexp.MustCompile(`(?i)^\s*(instructions?|directions?|method|steps|preparation)\b`)
	whitespace         = regexp.MustCompile(`\s+`)
)

// headingMaxLen bounds the length of a plain line treated as a section heading
const headingMaxLen = 40

// HTMLParser turns note HTML into a cleaned document and its structure
type HTMLParser interface {
	Clean(ctx context.Context, content string) (string, error)
	Parse(ctx context.Context, cleaned string) (ParsedNote, error)
}

// NoteHTMLParser is the default HTMLParser built on golang.org/x/net/html
type NoteHTMLParser struct{}

// Clean removes scripts, styles, comments and presentational attributes
func (NoteHTMLParser) Clean(_ context.Context, content string) (string, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return "", pipeline.Validation(fmt.Errorf("parse html: %w", err))
	}

	clean(doc)

	body := findFirst(doc, atom.Body)
	if body == nil {
		body = doc
	}
	if strings.TrimSpace(textOf(body)) == "" && findFirst(body, atom.Img) == nil {
		return "", pipeline.Validationf("note has no content")
	}

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func clean(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		switch {
		case c.Type == html.CommentNode:
			n.RemoveChild(c)
		case c.Type == html.ElementNode && strippedElements[c.DataAtom]:
			n.RemoveChild(c)
		default:
			if c.Type == html.ElementNode {
				attrs := c.Attr[:0]
				for _, a := range c.Attr {
					if keptAttributes[a.Key] {
						attrs = append(attrs, a)
					}
				}
				c.Attr = attrs
			}
			clean(c)
		}
		c = next
	}
}

type section int

const (
	sectionNone section = iota
	sectionIngredients
	sectionInstructions
)

// line is one text line of the document in reading order
type line struct {
	text    string
	heading bool
	list    *html.Node // enclosing ul/ol, nil outside lists
	ordered bool
	blank   bool
}

// Parse extracts the title, ingredient lines, instruction lines and images.
// Lines are assigned to sections by headings such as "Ingredients" and
// "Directions"; notes without headings fall back to ul/ol lists.
func (NoteHTMLParser) Parse(_ context.Context, cleaned string) (ParsedNote, error) {
	doc, err := html.Parse(strings.NewReader(cleaned))
	if err != nil {
		return ParsedNote{}, pipeline.Validation(fmt.Errorf("parse html: %w", err))
	}

	var note ParsedNote
	var lines []line
	collectLines(doc, nil, false, &lines)
	note.Images = collectImages(doc)
	note.Title = title(doc, lines)

	if !sectionize(lines, &note) {
		fallbackLists(lines, &note)
	}

	if len(note.Ingredients) == 0 && len(note.Instructions) == 0 && note.Title == "" {
		return ParsedNote{}, pipeline.Validationf("no recipe content found")
	}
	return note, nil
}

func sectionize(lines []line, note *ParsedNote) bool {
	current := sectionNone
	found := false
	block, lineInBlock := -1, 0
	var lastList *html.Node
	newBlock := true

	for _, l := range lines {
		if l.blank {
			newBlock = true
			continue
		}

		if l.heading || len(l.text) <= headingMaxLen {
			switch {
			case ingredientHeading.MatchString(l.text):
				current, found, newBlock = sectionIngredients, true, true
				continue
			case instructionHeading.MatchString(l.text):
				current, found = sectionInstructions, true
				continue
			}
		}
		if l.heading {
			// a sub-heading splits ingredient groups
			newBlock = true
			continue
		}

		switch current {
		case sectionIngredients:
			if newBlock || l.list != lastList {
				block++
				lineInBlock = 0
				newBlock = false
			}
			lastList = l.list
			note.Ingredients = append(note.Ingredients, ParsedLine{Reference: l.text, BlockIndex: block, LineIndex: lineInBlock})
			lineInBlock++
		case sectionInstructions:
			note.Instructions = append(note.Instructions, ParsedLine{Reference: l.text, LineIndex: len(note.Instructions)})
		}
	}
	return found
}

func fallbackLists(lines []line, note *ParsedNote) {
	block := -1
	var lastList *html.Node
	lineInBlock := 0
	for _, l := range lines {
		if l.list == nil || l.blank || l.heading {
			continue
		}
		if l.ordered {
			note.Instructions = append(note.Instructions, ParsedLine{Reference: l.text, LineIndex: len(note.Instructions)})
			continue
		}
		if l.list != lastList {
			block++
			lineInBlock = 0
			lastList = l.list
		}
		note.Ingredients = append(note.Ingredients, ParsedLine{Reference: l.text, BlockIndex: block, LineIndex: lineInBlock})
		lineInBlock++
	}
}

func isHeading(a atom.Atom) bool {
	switch a {
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Table, atom.Tr, atom.Td,
		atom.Section, atom.Article, atom.Blockquote, atom.Pre,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		return true
	}
	return false
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBlock(c.DataAtom) {
			return true
		}
	}
	return false
}

func collectLines(n *html.Node, list *html.Node, ordered bool, out *[]line) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch {
		case c.DataAtom == atom.Ul || c.DataAtom == atom.Ol:
			collectLines(c, c, c.DataAtom == atom.Ol, out)
		case isHeading(c.DataAtom):
			if text := normalizeSpace(textOf(c)); text != "" {
				*out = append(*out, line{text: text, heading: true, list: list, ordered: ordered})
			}
		case isBlock(c.DataAtom) && !hasBlockChild(c):
			text := normalizeSpace(textOf(c))
			*out = append(*out, line{text: text, list: list, ordered: ordered, blank: text == ""})
		default:
			collectLines(c, list, ordered, out)
		}
	}
}

func collectImages(n *html.Node) []string {
	var images []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Img {
			for _, a := range n.Attr {
				if a.Key == "src" && strings.TrimSpace(a.Val) != "" {
					images = append(images, strings.TrimSpace(a.Val))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return images
}

func title(doc *html.Node, lines []line) string {
	if t := findFirst(doc, atom.Title); t != nil {
		if text := normalizeSpace(textOf(t)); text != "" {
			return text
		}
	}
	for _, l := range lines {
		if l.heading && !ingredientHeading.MatchString(l.text) && !instructionHeading.MatchString(l.text) {
			return l.text
		}
	}
	for _, l := range lines {
		if !l.blank {
			return l.text
		}
	}
	return ""
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

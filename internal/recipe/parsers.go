package recipe

import (
	"context"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/cuongbtq/recipe-pipeline/internal/pipeline"
)

// Pattern tokens
const (
	TokenAmount     = "AMOUNT"
	TokenUnit       = "UNIT"
	TokenIngredient = "INGREDIENT"
	TokenNote       = "NOTE"
)

// IngredientParser turns a raw ingredient line into its parts
type IngredientParser interface {
	ParseIngredient(ctx context.Context, line string) (ParsedIngredient, error)
}

// InstructionParser normalizes one instruction line
type InstructionParser interface {
	ParseInstruction(ctx context.Context, line string) (string, error)
}

// Categorizer picks a category for a note
type Categorizer interface {
	Categorize(ctx context.Context, title string, ingredients []string) (string, error)
}

// ImageInspector validates an image reference and reports its content type
type ImageInspector interface {
	Inspect(ctx context.Context, ref string) (string, error)
}

// Parsers bundles the parsing collaborators used by actions
type Parsers struct {
	HTML        HTMLParser
	Ingredient  IngredientParser
	Instruction InstructionParser
	Categorizer Categorizer
	Images      ImageInspector
}

// DefaultParsers returns the rule based parsers
func DefaultParsers() Parsers {
	return Parsers{
		HTML:        NoteHTMLParser{},
		Ingredient:  LineParser{},
		Instruction: LineParser{},
		Categorizer: KeywordCategorizer{},
		Images:      URLInspector{},
	}
}

var (
	amountToken = regexp.MustCompile(`^(\d+([.,/]\d+)?|\d*[½⅓⅔¼¾⅛⅜⅝⅞])(-(\d+([.,/]\d+)?))?$`)
	stepPrefix  = regexp.MustCompile(`(?i)^\s*(step\s*\d+\s*[:.)-]?|\d+\s*[.):-]|[-*•])\s*`)
)

var units = map[string]bool{
	"c": true, "cup": true, "cups": true,
	"tbsp": true, "tbs": true, "tablespoon": true, "tablespoons": true,
	"tsp": true, "teaspoon": true, "teaspoons": true,
	"g": true, "gram": true, "grams": true, "kg": true,
	"ml": true, "l": true, "liter": true, "liters": true, "litre": true, "litres": true,
	"oz": true, "ounce": true, "ounces": true,
	"lb": true, "lbs": true, "pound": true, "pounds": true,
	"pinch": true, "dash": true, "clove": true, "cloves": true,
	"can": true, "cans": true, "package": true, "packages": true,
	"stick": true, "sticks": true, "slice": true, "slices": true,
	"bunch": true, "handful": true, "quart": true, "quarts": true, "pint": true, "pints": true,
}

// LineParser is the default rule based line parser
type LineParser struct{}

// ParseIngredient splits "1 1/2 cups flour, sifted" into amount, unit,
// name and note
func (LineParser) ParseIngredient(_ context.Context, line string) (ParsedIngredient, error) {
	line = normalizeSpace(line)
	if line == "" {
		return ParsedIngredient{}, pipeline.Validationf("ingredient line is empty")
	}

	var out ParsedIngredient
	var pattern []string

	main, note, hasNote := strings.Cut(line, ",")
	tokens := strings.Fields(main)

	i := 0
	var amount []string
	for i < len(tokens) && amountToken.MatchString(tokens[i]) {
		amount = append(amount, tokens[i])
		i++
	}
	if len(amount) > 0 {
		out.Quantity = strings.Join(amount, " ")
		pattern = append(pattern, TokenAmount)
	}

	if i < len(tokens) && units[strings.TrimSuffix(strings.ToLower(tokens[i]), ".")] {
		out.Unit = strings.TrimSuffix(strings.ToLower(tokens[i]), ".")
		pattern = append(pattern, TokenUnit)
		i++
	}

	out.Name = strings.Join(tokens[i:], " ")
	if out.Name != "" {
		pattern = append(pattern, TokenIngredient)
	}

	if hasNote {
		out.Note = strings.TrimSpace(note)
		if out.Note != "" {
			pattern = append(pattern, TokenNote)
		}
	}

	if out.Name == "" && out.Note == "" {
		return ParsedIngredient{}, pipeline.Validationf("ingredient line %q has no ingredient", line)
	}

	out.Pattern = strings.Join(pattern, " ")
	return out, nil
}

// ParseInstruction strips numbering and bullets and collapses whitespace
func (LineParser) ParseInstruction(_ context.Context, line string) (string, error) {
	text := normalizeSpace(stepPrefix.ReplaceAllString(normalizeSpace(line), ""))
	if text == "" {
		return "", pipeline.Validationf("instruction line is empty")
	}
	return text, nil
}

// DefaultCategory is used when no keyword matches
const DefaultCategory = "Uncategorized"

var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"Desserts", []string{"cake", "cookie", "brownie", "pie", "chocolate", "dessert", "frosting", "pudding"}},
	{"Breakfast", []string{"pancake", "waffle", "oatmeal", "granola", "omelet", "breakfast"}},
	{"Soups", []string{"soup", "stew", "chowder", "broth", "bisque"}},
	{"Salads", []string{"salad", "vinaigrette", "slaw"}},
	{"Pasta", []string{"pasta", "spaghetti", "penne", "lasagna", "noodle", "macaroni"}},
	{"Seafood", []string{"salmon", "shrimp", "tuna", "cod", "fish", "crab"}},
	{"Poultry", []string{"chicken", "turkey", "duck"}},
	{"Meat", []string{"beef", "pork", "lamb", "bacon", "sausage"}},
	{"Baking", []string{"bread", "muffin", "yeast", "scone", "biscuit"}},
}

// KeywordCategorizer matches the title first, then the ingredients
type KeywordCategorizer struct{}

func (KeywordCategorizer) Categorize(_ context.Context, title string, ingredients []string) (string, error) {
	if c := matchCategory(strings.ToLower(title)); c != "" {
		return c, nil
	}

	scores := make(map[string]int)
	best, bestScore := DefaultCategory, 0
	for _, ing := range ingredients {
		c := matchCategory(strings.ToLower(ing))
		if c == "" {
			continue
		}
		scores[c]++
		if scores[c] > bestScore {
			best, bestScore = c, scores[c]
		}
	}
	return best, nil
}

func matchCategory(text string) string {
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(text, kw) {
				return ck.category
			}
		}
	}
	return ""
}

// URLInspector accepts http(s) and data URLs and derives the content type
// from the data prefix or the file extension
type URLInspector struct{}

func (URLInspector) Inspect(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "data:"); ok {
		mediaType, _, _ := strings.Cut(rest, ";")
		mediaType, _, _ = strings.Cut(mediaType, ",")
		if !strings.HasPrefix(mediaType, "image/") {
			return "", pipeline.Validationf("data url is not an image")
		}
		return mediaType, nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return "", pipeline.Validation(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", pipeline.Validationf("unsupported image url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", pipeline.Validationf("image url has no host")
	}

	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(u.Path))); ct != "" {
		return ct, nil
	}
	return "application/octet-stream", nil
}

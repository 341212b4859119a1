package notionrules

import (
	"strings"

	"github.com/dvloznov/bankfeed/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the rules database.
const (
	PropPattern     = "Pattern"
	PropMatchType   = "Match Type"
	PropSearchIn    = "Search In"
	PropCategory    = "Category"
	PropSubcategory = "Subcategory"
	PropPriority    = "Priority"
	PropActive      = "Active"
)

// PageToRule converts a rules database page to a domain rule. Missing
// properties map to zero values; the matcher never fires a rule whose
// pattern, match type or scope is empty.
func PageToRule(page notionapi.Page) domain.Rule {
	return domain.Rule{
		ID:          string(page.ID),
		Pattern:     textValue(page.Properties[PropPattern]),
		MatchType:   domain.MatchType(enumValue(page.Properties[PropMatchType])),
		Scope:       domain.Scope(enumValue(page.Properties[PropSearchIn])),
		Category:    textValue(page.Properties[PropCategory]),
		Subcategory: textValue(page.Properties[PropSubcategory]),
		Priority:    numberValue(page.Properties[PropPriority]),
		Active:      checkboxValue(page.Properties[PropActive]),
		CreatedAt:   page.CreatedTime,
	}
}

// textValue reads a title, rich text or select property as plain text.
func textValue(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return joinRichText(p.Title)
	case *notionapi.RichTextProperty:
		return joinRichText(p.RichText)
	case *notionapi.SelectProperty:
		return p.Select.Name
	}
	return ""
}

// enumValue normalizes select names like "Starts With" to "starts_with".
func enumValue(prop notionapi.Property) string {
	v := strings.ToLower(strings.TrimSpace(textValue(prop)))
	return strings.Join(strings.Fields(strings.ReplaceAll(v, "-", " ")), "_")
}

func numberValue(prop notionapi.Property) int {
	if p, ok := prop.(*notionapi.NumberProperty); ok {
		return int(p.Number)
	}
	return 0
}

func checkboxValue(prop notionapi.Property) bool {
	if p, ok := prop.(*notionapi.CheckboxProperty); ok {
		return p.Checkbox
	}
	return false
}

func joinRichText(parts []notionapi.RichText) string {
	var b strings.Builder
	for _, rt := range parts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

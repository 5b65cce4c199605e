package notionexport

import (
	"github.com/jomei/notionapi"

	"github.com/avolkov/spendwatch/internal/store"
)

// Database property names expected in the target Notion database.
const (
	propTitle       = "Title"
	propKind        = "Kind"
	propCategory    = "Category"
	propBody        = "Body"
	propFingerprint = "Fingerprint"
	propCreated     = "Created"
)

// insightProperties maps an insight onto the Notion database schema.
func insightProperties(in *store.Insight) notionapi.Properties {
	props := notionapi.Properties{
		propTitle: notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: in.Title}}},
		},
		propKind: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(in.Kind)},
		},
		propBody: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: in.Body}}},
		},
		propFingerprint: notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: in.Fingerprint}}},
		},
		propCreated: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: (*notionapi.Date)(&in.CreatedAt)},
		},
	}
	if in.Category != "" {
		props[propCategory] = notionapi.SelectProperty{
			Select: notionapi.Option{Name: in.Category},
		}
	}
	return props
}

// pageFingerprint extracts the fingerprint stored on an exported page.
// Returns "" when the property is missing or empty.
func pageFingerprint(page notionapi.Page) string {
	prop, ok := page.Properties[propFingerprint]
	if !ok {
		return ""
	}
	rt, ok := prop.(*notionapi.RichTextProperty)
	if !ok || len(rt.RichText) == 0 {
		return ""
	}
	return rt.RichText[0].PlainText
}

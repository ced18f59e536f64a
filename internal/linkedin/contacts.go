package linkedin

import "regexp"

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRegex = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
)

// scanContacts pulls email addresses and phone numbers out of plain text.
// The matched string itself lands in URL; recruiters paste these inline so
// this is often the only actionable link in a hiring post.
func scanContacts(text string) []ContentItem {
	var items []ContentItem
	for _, email := range emailRegex.FindAllString(text, -1) {
		items = append(items, ContentItem{Type: ContentEmail, URL: email})
	}
	for _, phone := range phoneRegex.FindAllString(text, -1) {
		items = append(items, ContentItem{Type: ContentPhone, URL: phone})
	}
	return items
}

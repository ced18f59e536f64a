package linkedin

import (
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Recoverable extraction outcomes. Elements hitting these are skipped and the
// session moves on.
var (
	ErrNoPostID = errors.New("no activity id found on post element")
	ErrNoBody   = errors.New("post body not found")
)

// Post wraps one feed post subtree for extraction. Instances are single-use:
// internal lookups are memoized so the subtree is never queried twice for the
// same thing, and Dispose must be called afterwards so thousands of scraped
// posts don't pin their DOM snapshots in memory for the whole session.
type Post struct {
	sel      *goquery.Selection
	reshared bool
	misses   *BodyMissCounter
	cache    map[string]*goquery.Selection
}

// NewPost builds an extractor over a post element. reshared flips the id and
// content-root sources to the nested sub-post variants. misses is shared
// session state; pass the same counter for every post of one session.
func NewPost(sel *goquery.Selection, reshared bool, misses *BodyMissCounter) *Post {
	return &Post{
		sel:      sel,
		reshared: reshared,
		misses:   misses,
		cache:    make(map[string]*goquery.Selection),
	}
}

// Dispose drops the memo cache and the element reference.
func (p *Post) Dispose() {
	p.cache = nil
	p.sel = nil
}

// lookup memoizes one selector query per key.
func (p *Post) lookup(key string, find func() *goquery.Selection) *goquery.Selection {
	if cached, ok := p.cache[key]; ok {
		return cached
	}
	found := find()
	p.cache[key] = found
	return found
}

// ID returns the activity id, or "" when unparseable.
//
// Top-level posts carry the URN in their data-id attribute. Reshared
// sub-posts don't, so the id is parsed from their details-page link instead.
// Known limitation: that link can name the resharing act rather than the
// original content, so ids (and therefore PostedAt) recovered for reshares
// may not belong to the original post.
func (p *Post) ID() string {
	if !p.reshared {
		if id, ok := p.sel.Attr("data-id"); ok {
			return ParseActivityID(id)
		}
		// Fallback for sub-elements handed in directly: nearest ancestor
		// carrying the attribute.
		return ParseActivityID(p.sel.Closest(`[data-id]`).AttrOr("data-id", ""))
	}
	link := p.lookup("detailsLink", func() *goquery.Selection {
		return p.sel.Find(selDetailsPageLink).First()
	})
	return ParseActivityID(link.AttrOr("href", ""))
}

// Body returns the visible post body text. A miss feeds the shared staleness
// counter and comes back as ErrNoBody until the streak exceeds the limit, at
// which point ErrStaleSelectors is returned instead.
func (p *Post) Body() (string, error) {
	body := p.lookup("postBody", func() *goquery.Selection {
		return p.sel.Find(selBody).First()
	})
	if body.Length() == 0 {
		if err := p.misses.Miss(); err != nil {
			return "", err
		}
		return "", ErrNoBody
	}
	p.misses.Hit()
	return strings.TrimSpace(body.Text()), nil
}

// HeaderText returns the grey header line above the author block
// ("X reposted this", "X likes this"), or "" when absent.
func (p *Post) HeaderText() string {
	header := p.lookup("header", func() *goquery.Selection {
		return p.sel.Find(selHeader).First()
	})
	return strings.TrimSpace(header.Text())
}

// Author returns the author block, or nil when the actor markup is missing.
func (p *Post) Author() *PostAuthor {
	nameSel := p.lookup("actorName", func() *goquery.Selection {
		visible := p.sel.Find(selActorNameVisible).First()
		if visible.Length() > 0 {
			return visible
		}
		return p.sel.Find(selActorName).First()
	})
	linkSel := p.lookup("actorLink", func() *goquery.Selection {
		link := p.sel.Find(selActorLink).First()
		if link.Length() > 0 {
			return link
		}
		return p.sel.Find(selActorContainerAlt).First()
	})
	if nameSel.Length() == 0 && linkSel.Length() == 0 {
		return nil
	}
	author := &PostAuthor{}
	if name := strings.TrimSpace(nameSel.Text()); name != "" {
		author.Name = &name
	}
	if href, ok := linkSel.Attr("href"); ok {
		u := stripQueryFragment(href)
		author.URL = &u
	}
	return author
}

// content returns the attachment root. Reshared sub-posts render their
// attachments in a different wrapper than top-level posts.
func (p *Post) content() *goquery.Selection {
	return p.lookup("postContent", func() *goquery.Selection {
		sel := selContent
		if p.reshared {
			sel = selResharedContent
		}
		return p.sel.Find(sel).First()
	})
}

// contentMarker classifies the attachment root against the ordered marker
// list. Returns "" when there is no attachment or its type is unrecognized.
func (p *Post) contentMarker() string {
	content := p.content()
	if content.Length() == 0 {
		return ""
	}
	for _, marker := range contentTypeMarkers {
		if content.Is(".update-components-" + marker) {
			return marker
		}
	}
	return ""
}

// Contents assembles the post's ContentItems: contact info scanned from the
// body text first, then the attachment links for the detected type. Posts
// with no recognized attachment type, and document containers (cross-origin
// slideshows, contents unreachable), yield nothing at all.
func (p *Post) Contents() []ContentItem {
	var items []ContentItem
	items = append(items, p.ContactInfo()...)

	marker := p.contentMarker()
	if marker == "" || marker == markerDocument {
		return nil
	}

	ctype := markerContentTypes[marker]
	content := p.content()
	switch marker {
	case markerImage:
		content.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
			items = append(items, ContentItem{Type: ctype, URL: img.AttrOr("src", "")})
		})
	case markerEntity:
		content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			items = append(items, ContentItem{Type: ctype, URL: stripQueryFragment(a.AttrOr("href", ""))})
		})
	case markerArticle:
		// Raw hrefs on purpose. Articles point off-platform and telling
		// tracking params apart from meaningful ones isn't worth it here.
		content.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			items = append(items, ContentItem{Type: ctype, URL: a.AttrOr("href", "")})
		})
	case markerVideo:
		if poster, ok := content.Find("video").First().Attr("poster"); ok {
			items = append(items, ContentItem{Type: ctype, ThumbnailURL: poster})
		}
	}
	return items
}

// ContactInfo scans the body text for email addresses and phone numbers.
// Body misses are swallowed here; the Body accessor owns the staleness
// bookkeeping and this just sees an empty string.
func (p *Post) ContactInfo() []ContentItem {
	body := p.lookup("postBody", func() *goquery.Selection {
		return p.sel.Find(selBody).First()
	})
	if body.Length() == 0 {
		return nil
	}
	return scanContacts(body.Text())
}

// Extract produces the candidate record for this post, or a recoverable
// skip (ErrNoPostID, ErrNoBody), or ErrStaleSelectors once the miss streak
// escalates.
func (p *Post) Extract() (*Candidate, error) {
	id := p.ID()
	if id == "" {
		return nil, ErrNoPostID
	}
	body, err := p.Body()
	if err != nil {
		return nil, err
	}
	cand := &Candidate{
		PostID:       id,
		PostURL:      ActivityURL(id),
		PostBody:     body,
		PostAuthor:   p.Author(),
		PostContents: p.Contents(),
	}
	if ts, err := DecodePostedAt(id); err == nil {
		cand.PostedAt = &ts
	}
	return cand, nil
}

// stripQueryFragment normalizes an href by dropping query and fragment.
// LinkedIn stuffs per-render tracking params into hrefs, which would make one
// link dedupe as many.
func stripQueryFragment(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

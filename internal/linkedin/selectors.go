package linkedin

// Selectors for the feed DOM. These chase LinkedIn's markup and are the part
// of the system expected to rot; the extractor escalates through
// BodyMissCounter when they appear stale.
const (
	// SelFeedRoot is the scroll container holding the feed posts.
	SelFeedRoot = `[data-finite-scroll-hotkey-context="FEED"]`
	// SelPost matches one top-level feed post. The data-id attribute carries
	// the activity URN.
	SelPost = `div[data-id^="urn:li:activity:"]`
	// SelSharedPost matches the nested sub-post container of a reshare.
	SelSharedPost = `.update-components-mini-update-v2`

	selBody              = `.feed-shared-update-v2__description`
	selContent           = `.feed-shared-update-v2__content`
	selResharedContent   = `.update-components-mini-update-v2__reshared-content`
	selDetailsPageLink   = `a.update-components-mini-update-v2__link-to-details-page`
	selHeader            = `.update-components-header`
	selActorName         = `.update-components-actor__title`
	selActorNameVisible  = `.update-components-actor__title span[aria-hidden="true"]`
	selActorLink         = `a.update-components-actor__meta-link`
	selActorContainerAlt = `.update-components-actor__container a`
)

// Attachment type markers, matched in order against the content root's
// class list (prefixed with "update-components-"). First match wins.
// document__container is a cross-origin slideshow iframe whose contents are
// unreachable.
const (
	markerImage    = "image"
	markerVideo    = "linkedin-video"
	markerArticle  = "article"
	markerEntity   = "entity"
	markerDocument = "document__container"
)

var contentTypeMarkers = []string{markerImage, markerVideo, markerArticle, markerEntity, markerDocument}

var markerContentTypes = map[string]ContentType{
	markerImage:   ContentImage,
	markerVideo:   ContentVideo,
	markerArticle: ContentArticle,
	markerEntity:  ContentJob,
}

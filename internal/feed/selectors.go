package feed

import "regexp"

// Selector catalog for the reels feed. The feed's DOM recycles a fixed pool
// of slots and reshuffles utility classes between deploys, so everything
// here leans on semantics that survive redesigns: accessible labels (in the
// two languages the feed serves us), ARIA roles, route shapes and media
// hostnames. Cosmetic class hooks appear only as last-resort fallbacks.
const (
	// Current-item candidates. Videos win when any exist; the card
	// container search runs only when no video is mounted yet.
	videoSelector = "video"
	cardSelector  = `main div[role="presentation"]`

	// Engagement markers. The label lives on the icon inside the button.
	likeMarkerSelector    = `svg[aria-label="Like"], svg[aria-label="좋아요"]`
	commentMarkerSelector = `svg[aria-label="Comment"], svg[aria-label="댓글"]`

	// The marker's enclosing control cluster; count spans live nearby.
	markerContainerSelector = `div[role="button"], button, section`

	// Author identity.
	authorAnchorSelector = `a[aria-label*="Reel by"], a[aria-label*="님의 릴스"]`
	authorLabelSpan      = `span[dir="auto"]`
	avatarImageSelector  = `img[alt$="profile picture"], img[alt$="프로필 사진"]`

	// Caption candidates: a clamped caption span when the layout provides
	// one, any generically tagged text span otherwise.
	titleStyledSpanSelector  = `span[style*="-webkit-line-clamp"]`
	titleGenericSpanSelector = `span[dir="auto"]`

	// Music attribution.
	audioAnchorSelector   = `a[href*="/reels/audio/"]`
	musicStyledSpanSelect = `span[dir="auto"]`

	// Thumbnail fallbacks.
	cardImageSelector = `img[class*="x5yr21d"]`
	anyImageSelector  = "img"

	// mediaHostSubstring identifies CDN-served media as opposed to UI
	// sprites and tracking pixels.
	mediaHostSubstring = "cdninstagram"

	// Bounds used by the title and author-handle sanity checks.
	titleMinLen  = 2
	titleMaxLen  = 300
	handleMaxLen = 64
	musicMinLen  = 3
)

// originalAudioMarkers match the literal "original audio" attribution in the
// two observed languages; used by the document-wide music fallback.
var originalAudioMarkers = []string{"Original audio", "오리지널 오디오"}

// permalinkIDPattern extracts the canonical item id from a reel permalink
// path ("/reel/<id>/" or "/reels/<id>/").
var permalinkIDPattern = regexp.MustCompile(`/reels?/([A-Za-z0-9_-]+)`)

// numericTextPattern matches strings that are purely numeric once grouping
// separators are ignored; such spans are count artifacts, never captions.
var numericTextPattern = regexp.MustCompile(`^[\d.,\s]+$`)

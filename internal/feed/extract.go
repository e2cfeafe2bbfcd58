package feed

import (
	"context"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/dom"
)

// Extractor pulls a Record out of whatever the Resolver decides is the
// current item. Every field runs its own ordered chain of strategies; the
// first strategy that yields a value wins and the rest are skipped. Nothing
// in here returns an error: a field the page refuses to give up is simply
// absent, and an all-absent record tells the loop to try again next cycle.
type Extractor struct {
	page     dom.Page
	resolver *Resolver
	logger   *zap.Logger
}

// NewExtractor builds an Extractor that resolves the current item through
// resolver and reads fields through page.
func NewExtractor(page dom.Page, resolver *Resolver, logger *zap.Logger) *Extractor {
	return &Extractor{
		page:     page,
		resolver: resolver,
		logger:   logger.Named("extractor"),
	}
}

// Extract resolves the current item and recovers whatever fields it can.
func (e *Extractor) Extract(ctx context.Context) Record {
	video := e.resolver.CurrentVideo(ctx)
	card := e.resolver.CurrentCard(ctx)
	// With no card the strategies scan the whole document; the geometry
	// backup paths below compensate for the lost scoping.
	root := card

	rec := Record{CollectedAt: time.Now().UTC()}

	// The live location is the most reliable identity signal: the feed
	// updates it synchronously with the current item. Never reconstructed
	// from on-page links.
	if href, err := e.page.NavigationURL(ctx); err == nil {
		rec.Permalink = href
	}

	if n, ok := e.extractCount(ctx, root, video, likeMarkerSelector); ok {
		rec.LikeCount = &n
	}
	if n, ok := e.extractCount(ctx, root, video, commentMarkerSelector); ok {
		rec.CommentCount = &n
	}

	rec.AuthorHandle = e.extractAuthorHandle(ctx, root)
	rec.AuthorAvatarURL = e.extractAvatarURL(ctx, root)
	rec.Music = e.extractMusic(ctx, root)
	// Title rejection rules compare against the handle and music already
	// resolved above, so it must come last among the text fields.
	rec.Title = e.extractTitle(ctx, root, rec.AuthorHandle, rec.Music)
	rec.Thumbnail = e.extractThumbnail(ctx, video, card)

	if rec.Empty() {
		e.logger.Debug("extraction yielded no fields")
	}
	return rec
}

// -- Counts (likes, comments) --

// extractCount finds a semantic marker (the accessible-labeled like/comment
// icon), then reads the first normalizable numeric span near it. When no
// marker inside root produces a value it re-runs the search over the whole
// document and picks the marker vertically nearest the current video: the
// backup exists because marker-to-container association breaks whenever the
// card root could not be determined.
func (e *Extractor) extractCount(ctx context.Context, root, video *dom.Element, markerSelector string) (int64, bool) {
	if root != nil {
		markers, err := e.page.QueryAll(ctx, root, markerSelector, 5)
		if err == nil {
			for _, m := range markers {
				if n, ok := e.countNearMarker(ctx, m); ok {
					return n, true
				}
			}
		}
	}
	return e.countNearestMarker(ctx, video, markerSelector)
}

// countNearMarker reads candidate numeric spans from the marker's enclosing
// control cluster.
func (e *Extractor) countNearMarker(ctx context.Context, marker dom.Element) (int64, bool) {
	container, err := e.page.Closest(ctx, marker, markerContainerSelector)
	if err != nil || container == nil {
		return 0, false
	}
	spans, err := e.page.QueryAll(ctx, container, "span", 10)
	if err != nil {
		return 0, false
	}
	for _, s := range spans {
		text, err := e.page.TextContent(ctx, s)
		if err != nil {
			continue
		}
		if n, ok := parseCount(text); ok {
			return n, true
		}
	}
	return 0, false
}

// countNearestMarker is the document-wide backup: among all marker
// instances, take the one whose vertical center is closest to the current
// video's, then read its cluster the same way.
func (e *Extractor) countNearestMarker(ctx context.Context, video *dom.Element, markerSelector string) (int64, bool) {
	markers, err := e.page.QueryAll(ctx, nil, markerSelector, 20)
	if err != nil || len(markers) == 0 {
		return 0, false
	}

	target, ok := e.anchorCenter(ctx, video)
	if !ok {
		// No geometry to rank by; fall back to document order.
		for _, m := range markers {
			if n, found := e.countNearMarker(ctx, m); found {
				return n, true
			}
		}
		return 0, false
	}

	bestIdx := -1
	bestDist := math.Inf(1)
	for i, m := range markers {
		rect, err := e.page.BoundingRect(ctx, m)
		if err != nil {
			continue
		}
		dist := math.Abs(rect.Mid() - target)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return e.countNearMarker(ctx, markers[bestIdx])
}

// anchorCenter returns the vertical center to rank document-wide markers
// against: the current video's midpoint, or the viewport's when no video
// was resolved.
func (e *Extractor) anchorCenter(ctx context.Context, video *dom.Element) (float64, bool) {
	if video != nil {
		if rect, err := e.page.BoundingRect(ctx, *video); err == nil {
			return rect.Mid(), true
		}
	}
	if h, err := e.page.ViewportHeight(ctx); err == nil && h > 0 {
		return h / 2, true
	}
	return 0, false
}

// -- Author identity --

func (e *Extractor) extractAuthorHandle(ctx context.Context, root *dom.Element) string {
	// Primary: the accessible-labeled "this author's reel" anchor carries
	// the handle as the first path segment of its target.
	anchors, err := e.page.QueryAll(ctx, root, authorAnchorSelector, 3)
	if err == nil {
		for _, a := range anchors {
			if href, ok, err := e.page.Attribute(ctx, a, "href"); err == nil && ok {
				if handle := handleFromPath(href); handle != "" {
					return handle
				}
			}
		}
	}

	// Fallback: a nested label span. The length ceiling and whitespace
	// check reject caption paragraphs masquerading as identity.
	if len(anchors) > 0 {
		if handle := e.handleFromLabelSpan(ctx, &anchors[0]); handle != "" {
			return handle
		}
	}

	// Secondary fallback: locate the profile avatar and read the label span
	// of its nearest enclosing link.
	imgs, err := e.page.QueryAll(ctx, root, avatarImageSelector, 3)
	if err != nil {
		return ""
	}
	for _, img := range imgs {
		link, err := e.page.Closest(ctx, img, "a")
		if err != nil || link == nil {
			continue
		}
		if handle := e.handleFromLabelSpan(ctx, link); handle != "" {
			return handle
		}
	}
	return ""
}

func (e *Extractor) handleFromLabelSpan(ctx context.Context, scope *dom.Element) string {
	spans, err := e.page.QueryAll(ctx, scope, authorLabelSpan, 5)
	if err != nil {
		return ""
	}
	for _, s := range spans {
		text, err := e.page.TextContent(ctx, s)
		if err != nil {
			continue
		}
		if handle := sanitizeHandle(text); handle != "" {
			return handle
		}
	}
	return ""
}

// handleFromPath derives a handle from the first path segment of an anchor
// target ("/someuser/reel/XYZ/" -> "someuser").
func handleFromPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "" {
			continue
		}
		// Route keywords are not handles.
		if seg == "reel" || seg == "reels" || seg == "p" || seg == "explore" {
			return ""
		}
		return sanitizeHandle(seg)
	}
	return ""
}

// sanitizeHandle trims and validates a candidate handle; empty string means
// rejected.
func sanitizeHandle(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "@"))
	if s == "" || utf8.RuneCountInString(s) > handleMaxLen {
		return ""
	}
	if strings.ContainsAny(s, " \t\n") {
		return ""
	}
	return s
}

// -- Avatar URL --

func (e *Extractor) extractAvatarURL(ctx context.Context, root *dom.Element) string {
	imgs, err := e.page.QueryAll(ctx, root, avatarImageSelector, 3)
	if err == nil {
		for _, img := range imgs {
			if src, ok, err := e.page.Attribute(ctx, img, "src"); err == nil && ok && src != "" {
				return src
			}
		}
	}

	// Fallback: an avatar nested inside the author anchor, constrained to
	// the media CDN so UI sprites never slip through.
	anchors, err := e.page.QueryAll(ctx, root, authorAnchorSelector, 2)
	if err != nil {
		return ""
	}
	for _, a := range anchors {
		nested, err := e.page.QueryAll(ctx, &a, anyImageSelector, 3)
		if err != nil {
			continue
		}
		for _, img := range nested {
			src, ok, err := e.page.Attribute(ctx, img, "src")
			if err != nil || !ok {
				continue
			}
			if strings.Contains(src, mediaHostSubstring) {
				return src
			}
		}
	}
	return ""
}

// -- Title / caption --

func (e *Extractor) extractTitle(ctx context.Context, root *dom.Element, authorHandle, music string) string {
	spans, err := e.page.QueryAll(ctx, root, titleStyledSpanSelector, 15)
	if err != nil || len(spans) == 0 {
		spans, err = e.page.QueryAll(ctx, root, titleGenericSpanSelector, 15)
		if err != nil {
			return ""
		}
	}
	for _, s := range spans {
		text, err := e.page.TextContent(ctx, s)
		if err != nil {
			continue
		}
		if title := acceptTitle(text, authorHandle, music); title != "" {
			return title
		}
	}
	return ""
}

// acceptTitle applies the caption sanity rules: length strictly inside the
// bounds, not the author handle or music attribution we already extracted,
// not a bare handle, not a count artifact.
func acceptTitle(text, authorHandle, music string) string {
	t := strings.TrimSpace(text)
	n := utf8.RuneCountInString(t)
	if n <= titleMinLen || n >= titleMaxLen {
		return ""
	}
	if t == authorHandle || (music != "" && t == music) {
		return ""
	}
	if strings.HasPrefix(t, "@") {
		return ""
	}
	if numericTextPattern.MatchString(t) {
		return ""
	}
	return t
}

// -- Music attribution --

func (e *Extractor) extractMusic(ctx context.Context, root *dom.Element) string {
	anchors, err := e.page.QueryAll(ctx, root, audioAnchorSelector, 2)
	if err == nil {
		for _, a := range anchors {
			spans, err := e.page.QueryAll(ctx, &a, musicStyledSpanSelect, 5)
			if err == nil {
				for _, s := range spans {
					text, err := e.page.TextContent(ctx, s)
					if err != nil {
						continue
					}
					if t := strings.TrimSpace(text); utf8.RuneCountInString(t) >= musicMinLen {
						return t
					}
				}
			}
			// Fallback: the anchor's own text.
			if text, err := e.page.TextContent(ctx, a); err == nil {
				if t := strings.TrimSpace(text); utf8.RuneCountInString(t) >= musicMinLen {
					return t
				}
			}
		}
	}

	// Secondary fallback: the feed renders "original audio" attributions
	// without an audio-route anchor; scan document-wide for the literal
	// marker.
	spans, err := e.page.QueryAll(ctx, nil, musicStyledSpanSelect, 40)
	if err != nil {
		return ""
	}
	for _, s := range spans {
		text, err := e.page.TextContent(ctx, s)
		if err != nil {
			continue
		}
		t := strings.TrimSpace(text)
		for _, marker := range originalAudioMarkers {
			if strings.Contains(t, marker) {
				return t
			}
		}
	}
	return ""
}

// -- Thumbnail --

func (e *Extractor) extractThumbnail(ctx context.Context, video, card *dom.Element) string {
	// The current video's preview attribute is by far the most reliable
	// source.
	if video != nil {
		if poster, ok, err := e.page.Attribute(ctx, *video, "poster"); err == nil && ok && poster != "" {
			return poster
		}
	}

	// Fallback: the styled feed image inside the nearest card ancestor that
	// carries one, skipping avatars.
	if card != nil {
		scope, err := e.page.Closest(ctx, *card, `div:has(`+cardImageSelector+`)`)
		if err == nil && scope != nil {
			if src := e.firstNonAvatarImage(ctx, scope, cardImageSelector); src != "" {
				return src
			}
		}
	}

	// Last resort: any CDN-hosted image near the resolved video.
	scope := card
	if video != nil {
		if s, err := e.page.Closest(ctx, *video, `div:has(img)`); err == nil && s != nil {
			scope = s
		}
	}
	imgs, err := e.page.QueryAll(ctx, scope, anyImageSelector, 10)
	if err != nil {
		return ""
	}
	for _, img := range imgs {
		if e.isAvatar(ctx, img) {
			continue
		}
		src, ok, err := e.page.Attribute(ctx, img, "src")
		if err != nil || !ok {
			continue
		}
		if strings.Contains(src, mediaHostSubstring) {
			return src
		}
	}
	return ""
}

func (e *Extractor) firstNonAvatarImage(ctx context.Context, scope *dom.Element, selector string) string {
	imgs, err := e.page.QueryAll(ctx, scope, selector, 5)
	if err != nil {
		return ""
	}
	for _, img := range imgs {
		if e.isAvatar(ctx, img) {
			continue
		}
		if src, ok, err := e.page.Attribute(ctx, img, "src"); err == nil && ok && src != "" {
			return src
		}
	}
	return ""
}

func (e *Extractor) isAvatar(ctx context.Context, img dom.Element) bool {
	alt, ok, err := e.page.Attribute(ctx, img, "alt")
	if err != nil || !ok {
		return false
	}
	return strings.HasSuffix(alt, "profile picture") || strings.HasSuffix(alt, "프로필 사진")
}

package feed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/feedlark/reelwatch/internal/dom"
)

func newTestExtractor(fp *fakePage) *Extractor {
	logger := zap.NewNop()
	return NewExtractor(fp, NewResolver(fp, logger, 20), logger)
}

// buildFullCard stages a page with one fully populated current item and
// returns the page.
func buildFullCard(t *testing.T) *fakePage {
	t.Helper()
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/ABC123/" }

	card := fp.addNode(0, []string{cardSelector}, dom.Rect{Top: 100, Height: 700}, "", nil)
	fp.addNode(card, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", map[string]string{
		"poster": "https://scontent.cdninstagram.com/v/poster.jpg",
	})

	likeBtn := fp.addNode(card, []string{markerContainerSelector}, dom.Rect{Top: 300, Height: 40}, "", nil)
	fp.addNode(likeBtn, []string{likeMarkerSelector}, dom.Rect{Top: 300, Height: 24}, "", nil)
	fp.addNode(likeBtn, []string{"span"}, dom.Rect{Top: 330, Height: 16}, "4,346", nil)

	commentBtn := fp.addNode(card, []string{markerContainerSelector}, dom.Rect{Top: 360, Height: 40}, "", nil)
	fp.addNode(commentBtn, []string{commentMarkerSelector}, dom.Rect{Top: 360, Height: 24}, "", nil)
	fp.addNode(commentBtn, []string{"span"}, dom.Rect{Top: 390, Height: 16}, "1.2천", nil)

	fp.addNode(card, []string{authorAnchorSelector}, dom.Rect{Top: 650, Height: 20}, "", map[string]string{
		"href": "/someuser/reel/ABC123/",
	})
	fp.addNode(card, []string{avatarImageSelector}, dom.Rect{Top: 650, Height: 32}, "", map[string]string{
		"src": "https://scontent.cdninstagram.com/v/avatar.jpg",
		"alt": "someuser's profile picture",
	})

	audio := fp.addNode(card, []string{audioAnchorSelector}, dom.Rect{Top: 720, Height: 16}, "", map[string]string{
		"href": "/reels/audio/999/",
	})
	fp.addNode(audio, []string{musicStyledSpanSelect}, dom.Rect{Top: 720, Height: 16}, "Artist - Song Title", nil)

	fp.addNode(card, []string{titleStyledSpanSelector}, dom.Rect{Top: 690, Height: 16}, "A perfectly normal caption", nil)

	return fp
}

func TestExtract_FullCard(t *testing.T) {
	fp := buildFullCard(t)
	rec := newTestExtractor(fp).Extract(context.Background())

	assert.Equal(t, "https://www.instagram.com/reels/ABC123/", rec.Permalink)
	require.NotNil(t, rec.LikeCount)
	assert.Equal(t, int64(4346), *rec.LikeCount)
	require.NotNil(t, rec.CommentCount)
	assert.Equal(t, int64(1200), *rec.CommentCount)
	assert.Equal(t, "someuser", rec.AuthorHandle)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/avatar.jpg", rec.AuthorAvatarURL)
	assert.Equal(t, "Artist - Song Title", rec.Music)
	assert.Equal(t, "A perfectly normal caption", rec.Title)
	assert.Equal(t, "https://scontent.cdninstagram.com/v/poster.jpg", rec.Thumbnail)
	assert.False(t, rec.Empty())
}

func TestExtract_EmptyPageYieldsEmptyRecordWithTimestamp(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "" }

	rec := newTestExtractor(fp).Extract(context.Background())
	assert.True(t, rec.Empty())
	assert.False(t, rec.CollectedAt.IsZero())
}

func TestExtractCount_DocumentWideBackupRanksByDistance(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/XYZ/" }

	// No card container: the video itself becomes the scoping root, and the
	// markers sit outside it, forcing the geometric backup.
	video := fp.addNode(0, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", nil)
	_ = video

	// A leftover marker from the previous item, far above.
	staleBtn := fp.addNode(0, []string{markerContainerSelector}, dom.Rect{Top: -700, Height: 40}, "", nil)
	fp.addNode(staleBtn, []string{likeMarkerSelector}, dom.Rect{Top: -700, Height: 24}, "", nil)
	fp.addNode(staleBtn, []string{"span"}, dom.Rect{Top: -680, Height: 16}, "99", nil)

	// The marker belonging to the current item, near the video's center.
	liveBtn := fp.addNode(0, []string{markerContainerSelector}, dom.Rect{Top: 430, Height: 40}, "", nil)
	fp.addNode(liveBtn, []string{likeMarkerSelector}, dom.Rect{Top: 430, Height: 24}, "", nil)
	fp.addNode(liveBtn, []string{"span"}, dom.Rect{Top: 460, Height: 16}, "17.4만", nil)

	rec := newTestExtractor(fp).Extract(context.Background())
	require.NotNil(t, rec.LikeCount)
	assert.Equal(t, int64(174000), *rec.LikeCount)
}

func TestExtractAuthorHandle_FallsBackToLabelSpan(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/XYZ/" }

	card := fp.addNode(0, []string{cardSelector}, dom.Rect{Top: 100, Height: 700}, "", nil)
	fp.addNode(card, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", nil)

	// The anchor's target is a route keyword, so the path strategy fails.
	anchor := fp.addNode(card, []string{authorAnchorSelector}, dom.Rect{Top: 650, Height: 20}, "", map[string]string{
		"href": "/reels/XYZ/",
	})
	fp.addNode(anchor, []string{authorLabelSpan}, dom.Rect{Top: 650, Height: 16}, "  @label_user ", nil)

	rec := newTestExtractor(fp).Extract(context.Background())
	assert.Equal(t, "label_user", rec.AuthorHandle)
}

func TestAcceptTitle(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		handle string
		music  string
		want   string
	}{
		{"plain caption", "Look at this cat", "user1", "", "Look at this cat"},
		{"too short", "hi", "", "", ""},
		{"equals author handle", "user1", "user1", "", ""},
		{"equals music attribution", "Artist - Song", "", "Artist - Song", ""},
		{"bare handle", "@someone", "", "", ""},
		{"count artifact", "1,234", "", "", ""},
		{"grouped digits with spaces", "12 345", "", "", ""},
		{"whitespace trimmed", "  real caption  ", "", "", "real caption"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, acceptTitle(tt.text, tt.handle, tt.music))
		})
	}
}

func TestHandleFromPath(t *testing.T) {
	assert.Equal(t, "someuser", handleFromPath("/someuser/reel/ABC/"))
	assert.Equal(t, "someuser", handleFromPath("https://www.instagram.com/someuser/"))
	assert.Equal(t, "", handleFromPath("/reel/ABC/"))
	assert.Equal(t, "", handleFromPath("/reels/ABC/"))
	assert.Equal(t, "", handleFromPath("/p/ABC/"))
	assert.Equal(t, "", handleFromPath(""))
}

func TestExtractThumbnail_CardImageFallbackSkipsAvatars(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/XYZ/" }

	wrapper := fp.addNode(0, []string{`div:has(` + cardImageSelector + `)`}, dom.Rect{Top: 0, Height: 900}, "", nil)
	card := fp.addNode(wrapper, []string{cardSelector}, dom.Rect{Top: 100, Height: 700}, "", nil)
	// Video without a poster attribute.
	fp.addNode(card, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", nil)

	// An avatar that happens to carry the styled image class.
	fp.addNode(wrapper, []string{cardImageSelector}, dom.Rect{Top: 650, Height: 32}, "", map[string]string{
		"src": "https://scontent.cdninstagram.com/v/avatar.jpg",
		"alt": "someuser's profile picture",
	})
	fp.addNode(wrapper, []string{cardImageSelector}, dom.Rect{Top: 150, Height: 600}, "", map[string]string{
		"src": "https://scontent.cdninstagram.com/v/thumb.jpg",
		"alt": "Photo by someuser",
	})

	rec := newTestExtractor(fp).Extract(context.Background())
	assert.Equal(t, "https://scontent.cdninstagram.com/v/thumb.jpg", rec.Thumbnail)
}

func TestExtractThumbnail_LastResortRequiresMediaHost(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/XYZ/" }

	wrapper := fp.addNode(0, []string{`div:has(img)`}, dom.Rect{Top: 0, Height: 900}, "", nil)
	fp.addNode(wrapper, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", nil)

	// UI sprite from a non-media host must not be picked up.
	fp.addNode(wrapper, []string{anyImageSelector}, dom.Rect{Top: 10, Height: 16}, "", map[string]string{
		"src": "https://static.example.net/sprite.png",
	})
	fp.addNode(wrapper, []string{anyImageSelector}, dom.Rect{Top: 150, Height: 600}, "", map[string]string{
		"src": "https://scontent.cdninstagram.com/v/frame.jpg",
	})

	rec := newTestExtractor(fp).Extract(context.Background())
	assert.Equal(t, "https://scontent.cdninstagram.com/v/frame.jpg", rec.Thumbnail)
}

func TestExtractMusic_OriginalAudioFallback(t *testing.T) {
	fp := newFakePage(900)
	fp.urlFn = func() string { return "https://www.instagram.com/reels/XYZ/" }

	card := fp.addNode(0, []string{cardSelector}, dom.Rect{Top: 100, Height: 700}, "", nil)
	fp.addNode(card, []string{videoSelector}, dom.Rect{Top: 150, Height: 600}, "", nil)
	// No audio-route anchor anywhere; attribution rendered as a plain span.
	fp.addNode(card, []string{musicStyledSpanSelect}, dom.Rect{Top: 720, Height: 16}, "someuser · Original audio", nil)

	rec := newTestExtractor(fp).Extract(context.Background())
	assert.Equal(t, "someuser · Original audio", rec.Music)
}

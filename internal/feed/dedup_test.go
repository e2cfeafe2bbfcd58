package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.instagram.com/reels/ABC123/", "ABC123"},
		{"https://www.instagram.com/reel/xy_-9Z/", "xy_-9Z"},
		{"/reels/QQQ", "QQQ"},
		{"https://www.instagram.com/someuser/", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalID(tt.in), "input %q", tt.in)
	}
}

func TestLedger_IDDedup(t *testing.T) {
	l := NewLedger(zap.NewNop())

	a := Record{Permalink: "https://www.instagram.com/reels/AAA/"}
	assert.Equal(t, Novel, l.Classify(a, ""))
	assert.Equal(t, Duplicate, l.Classify(a, ""))

	// Same id under the singular route form is still the same item.
	assert.Equal(t, Duplicate, l.Classify(Record{Permalink: "https://www.instagram.com/reel/AAA/"}, ""))
	assert.Equal(t, 1, l.Size())
}

func TestLedger_LiveURLBacksUpMissingPermalink(t *testing.T) {
	l := NewLedger(zap.NewNop())

	rec := Record{Title: "caption"}
	assert.Equal(t, Novel, l.Classify(rec, "https://www.instagram.com/reels/BBB/"))
	assert.Equal(t, Duplicate, l.Classify(rec, "https://www.instagram.com/reels/BBB/"))
}

func TestLedger_IDPrecedenceOverThumbnail(t *testing.T) {
	l := NewLedger(zap.NewNop())

	first := Record{
		Permalink: "https://www.instagram.com/reels/CCC/",
		Thumbnail: "https://scontent.cdninstagram.com/v/t.jpg",
	}
	assert.Equal(t, Novel, l.Classify(first, ""))

	// Same thumbnail, different id: the id verdict wins and the record is
	// novel despite the seen thumbnail.
	second := Record{
		Permalink: "https://www.instagram.com/reels/DDD/",
		Thumbnail: "https://scontent.cdninstagram.com/v/t.jpg",
	}
	assert.Equal(t, Novel, l.Classify(second, ""))
}

func TestLedger_ThumbnailSecondaryKey(t *testing.T) {
	l := NewLedger(zap.NewNop())

	withID := Record{
		Permalink: "https://www.instagram.com/reels/EEE/",
		Thumbnail: "https://scontent.cdninstagram.com/v/e.jpg",
	}
	assert.Equal(t, Novel, l.Classify(withID, ""))

	// No id this time; the thumbnail registered alongside EEE convicts it.
	idless := Record{Thumbnail: "https://scontent.cdninstagram.com/v/e.jpg"}
	assert.Equal(t, Duplicate, l.Classify(idless, ""))
}

func TestLedger_NoKeysAdmitsAsNovel(t *testing.T) {
	l := NewLedger(zap.NewNop())

	rec := Record{Title: "only a caption"}
	assert.Equal(t, Novel, l.Classify(rec, ""))
	// It cannot be proven duplicate next time either.
	assert.Equal(t, Novel, l.Classify(rec, ""))
}

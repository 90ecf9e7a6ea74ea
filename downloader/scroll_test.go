package downloader

import (
	"context"
	"testing"

	"scrollgrab/sites"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScrollReachesTargetInSteps(t *testing.T) {
	b := newFakeBrowser(chapterOne, singlePage())
	s, rec := newTestSession(t, b, t.TempDir(), sites.Generic())
	s.browser = b

	s.scroll(context.Background())

	// 700 then 1000, then the final jump to the bottom
	require.Len(t, b.scrolls, 3)
	assert.Contains(t, b.scrolls[0], "top: 700")
	assert.Contains(t, b.scrolls[1], "top: 1000")
	assert.Contains(t, b.scrolls[2], "document.body.scrollHeight")
	assert.Zero(t, rec.count(testConfig().Scroll.FallbackPause))
}

func TestScrollExtendsTargetWhenPageGrows(t *testing.T) {
	b := newFakeBrowser(chapterOne, map[string]*fakePage{
		chapterOne: {height: []float64{1000, 1000, 2000}},
	})
	s, _ := newTestSession(t, b, t.TempDir(), sites.Generic())
	s.browser = b

	s.scroll(context.Background())

	// the target moves from 1000 to 2000 after the second step
	require.Len(t, b.scrolls, 5)
	assert.Contains(t, b.scrolls[2], "top: 1700")
	assert.Contains(t, b.scrolls[3], "top: 2000")
}

func TestScrollUsesLastSectionMarker(t *testing.T) {
	b := newFakeBrowser(chapterOne, map[string]*fakePage{
		chapterOne: {markers: true, height: []float64{500}},
	})
	s, _ := newTestSession(t, b, t.TempDir(), sites.Madara())
	s.browser = b

	s.scroll(context.Background())

	require.Len(t, b.scrolls, 2)
	assert.Contains(t, b.scrolls[0], "top: 500")
}

func TestScrollFallsBackOnError(t *testing.T) {
	b := newFakeBrowser(chapterOne, singlePage())
	b.failEvaluation = true
	s, rec := newTestSession(t, b, t.TempDir(), sites.Generic())
	s.browser = b

	s.scroll(context.Background())

	assert.Equal(t, 1, rec.count(testConfig().Scroll.FallbackPause))
}

func TestScrollStepCap(t *testing.T) {
	b := newFakeBrowser(chapterOne, map[string]*fakePage{
		chapterOne: {height: []float64{1e9}},
	})
	s, _ := newTestSession(t, b, t.TempDir(), sites.Generic())
	s.cfg.Scroll.MaxSteps = 5
	s.browser = b

	s.scroll(context.Background())

	// five steps plus the final jump
	assert.Len(t, b.scrolls, 6)
}

func TestLastMarkerBottomJSQuotesSelector(t *testing.T) {
	js := lastMarkerBottomJS(`div[data-x="a"]`)
	assert.Contains(t, js, `document.querySelectorAll("div[data-x=\"a\"]")`)
}

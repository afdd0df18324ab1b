package azubi

import (
	"strings"
	"testing"

	"azubi-engine/internal/domain"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSearchURL(t *testing.T) {
	a := New("")
	assert.Equal(t, domain.SiteAzubi, a.Site())
	assert.Equal(t, "https://www.azubi.de/suche?text=Mechatroniker", a.BuildSearchURL(" Mechatroniker ", 1))
	assert.Equal(t, "https://www.azubi.de/suche?page=3&text=Kauffrau+f%C3%BCr+B%C3%BCro", a.BuildSearchURL("Kauffrau für Büro", 3))
}

func TestNextPageURL(t *testing.T) {
	a := New("http://127.0.0.1:9999/")
	cur := a.BuildSearchURL("koch", 1)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<nav><a rel="next" href="/suche?text=koch&page=2">weiter</a></nav>`))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9999/suche?text=koch&page=2", a.NextPageURL(doc, cur))

	last, err := goquery.NewDocumentFromReader(strings.NewReader(`<nav><span>1</span></nav>`))
	require.NoError(t, err)
	assert.Empty(t, a.NextPageURL(last, cur))
}

func TestSelectorsAreSet(t *testing.T) {
	a := New("")
	ls := a.ListingSelectors()
	assert.NotEmpty(t, ls.Item)
	assert.NotEmpty(t, ls.Fields.Title)
	assert.NotEmpty(t, ls.Fields.Link)
	assert.NotEmpty(t, a.DetailSelectors().Title)
	assert.False(t, a.NeedsRender())
}

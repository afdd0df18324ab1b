package dedup

import (
	"testing"

	"azubi-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuplicateByURL(t *testing.T) {
	ix := New([]domain.IndexEntry{{ID: 7, URL: "https://www.azubi.de/ausbildungsplatz/1"}})

	e, dup := ix.IsDuplicate(domain.Job{URL: "http://WWW.azubi.de/ausbildungsplatz/1/?utm_source=mail"})
	require.True(t, dup)
	assert.Equal(t, int64(7), e.ID)

	_, dup = ix.IsDuplicate(domain.Job{URL: "https://www.azubi.de/ausbildungsplatz/2"})
	assert.False(t, dup)
}

func TestDuplicateByInstitutionTitleLocation(t *testing.T) {
	ix := New(nil)
	first := domain.Job{
		URL: "https://www.azubi.de/a/1", Title: "Mechatroniker",
		Institution: "ABC GmbH", Location: "Berlin", Emails: []string{"a@abc.de"},
	}
	_, dup := ix.IsDuplicate(first)
	require.False(t, dup)
	ix.Add(first)

	second := domain.Job{
		URL: "https://www.ausbildung.de/stellen/99", Title: "  mechatroniker ",
		Institution: "abc  GMBH", Location: "Berlin", Emails: []string{"b@abc.de", "a@abc.de"},
	}
	e, dup := ix.IsDuplicate(second)
	require.True(t, dup)
	assert.Equal(t, 1, ix.Merge(e, second.Emails))
	assert.Equal(t, []string{"a@abc.de", "b@abc.de"}, e.Emails)
	assert.Equal(t, 1, ix.Len())
}

func TestDifferentLocationIsNotDuplicate(t *testing.T) {
	ix := New([]domain.IndexEntry{{URL: "https://x.de/1", Title: "Koch", Institution: "Hotel Adler", Location: "Berlin"}})
	_, dup := ix.IsDuplicate(domain.Job{URL: "https://x.de/2", Title: "Koch", Institution: "Hotel Adler", Location: "Hamburg"})
	assert.False(t, dup)
}

func TestMissingInstitutionNeverMatchesSecondary(t *testing.T) {
	ix := New([]domain.IndexEntry{{URL: "https://x.de/1", Title: "Koch", Location: "Berlin"}})
	_, dup := ix.IsDuplicate(domain.Job{URL: "https://x.de/2", Title: "Koch", Location: "Berlin"})
	assert.False(t, dup)
	assert.Empty(t, Key("", "Koch", "Berlin"))
}

func TestKeyFoldsUnicode(t *testing.T) {
	decomposed := Key("Bäckerei Schmidt", "Bäcker", "Mu\u0308nchen")
	assert.Equal(t, Key("BÄCKEREI SCHMIDT", "bäcker", "München"), decomposed)
}

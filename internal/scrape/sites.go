package scrape

import (
	"azubi-engine/internal/scrape/ausbildung"
	"azubi-engine/internal/scrape/azubi"
	"azubi-engine/internal/scrape/types"
)

// DefaultAdapters registers every supported site against its live host.
func DefaultAdapters() types.Registry {
	return types.NewRegistry(
		azubi.New(""),
		ausbildung.New(""),
	)
}

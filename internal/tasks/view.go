package tasks

import (
	"fmt"
	"strings"

	"github.com/desertthunder/marquee/internal/models"
)

// ViewKind identifies which collection a [View] displays.
type ViewKind int

const (
	ViewRecommended ViewKind = iota
	ViewSearch
	ViewGenre
)

func (k ViewKind) String() string {
	switch k {
	case ViewSearch:
		return "search"
	case ViewGenre:
		return "genre"
	default:
		return "recommended"
	}
}

// RecommendedTitle is the title of the default view.
const RecommendedTitle = "Recommended For You"

// View is the single collection that should be displayed, with its title.
type View struct {
	Kind   ViewKind
	Title  string
	Movies []models.Movie
}

// ResolveView picks the authoritative collection from already-fetched data.
//
// A non-blank search wins, then a selected genre, then recommendations. Whitespace-only input counts
// as empty. The function performs no I/O and returns the input slices without copying.
func ResolveView(searchText, selectedGenre string, recommendations, searchResults, genreResults []models.Movie) View {
	if q := strings.TrimSpace(searchText); q != "" {
		return View{Kind: ViewSearch, Title: fmt.Sprintf("Search Results for %s", q), Movies: searchResults}
	}
	if g := strings.TrimSpace(selectedGenre); g != "" {
		return View{Kind: ViewGenre, Title: fmt.Sprintf("%s Movies", g), Movies: genreResults}
	}
	return View{Kind: ViewRecommended, Title: RecommendedTitle, Movies: recommendations}
}

// package formatter renders movie collections for the terminal and for export (table, CSV, Markdown, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/marquee/internal/models"
	"github.com/desertthunder/marquee/internal/shared"
	"github.com/goccy/go-json"
)

// Format selects an output encoding.
type Format string

const (
	FormatTable    Format = "table"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

var headers = []string{"ID", "Title", "Year", "Genres", "Rating", "Watchlist"}

// ParseFormat accepts a format name, case-insensitively. "md" is an alias for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// Row is one movie annotated with the user's state.
type Row struct {
	Movie       models.Movie `json:"movie"`
	Rating      float64      `json:"rating,omitempty"`
	Rated       bool         `json:"rated"`
	InWatchlist bool         `json:"in_watchlist"`
}

// Listing is a titled set of rows.
type Listing struct {
	Title string `json:"title"`
	Rows  []Row  `json:"movies"`
}

// NewListing annotates movies with ratings and watchlist membership. Either lookup may be nil.
func NewListing(title string, movies []models.Movie, ratings models.Ratings, watchlist map[int]struct{}) Listing {
	rows := make([]Row, 0, len(movies))
	for _, m := range movies {
		row := Row{Movie: m}
		row.Rating, row.Rated = ratings[m.ID]
		_, row.InWatchlist = watchlist[m.ID]
		rows = append(rows, row)
	}
	return Listing{Title: title, Rows: rows}
}

// WatchlistListing lists watchlist entries in saved order.
func WatchlistListing(entries []models.WatchlistEntry, ratings models.Ratings) Listing {
	movies := make([]models.Movie, len(entries))
	ids := make(map[int]struct{}, len(entries))
	for i, e := range entries {
		movies[i] = e.Movie
		if movies[i].ID == 0 {
			movies[i].ID = e.MovieID
		}
		ids[e.MovieID] = struct{}{}
	}
	return NewListing("Watchlist", movies, ratings, ids)
}

// FormatScore renders a score without trailing zeros, or "-" when unrated.
func FormatScore(score float64, rated bool) string {
	if !rated {
		return "-"
	}
	return strconv.FormatFloat(score, 'f', -1, 64)
}

func (r Row) record() []string {
	year := ""
	if r.Movie.ReleaseYear > 0 {
		year = strconv.Itoa(r.Movie.ReleaseYear)
	}
	saved := ""
	if r.InWatchlist {
		saved = "yes"
	}
	return []string{
		strconv.Itoa(r.Movie.ID),
		r.Movie.Title,
		year,
		strings.Join(r.Movie.GenreList(), ", "),
		FormatScore(r.Rating, r.Rated),
		saved,
	}
}

// Write encodes l to w in format f. pretty only affects JSON.
func Write(w io.Writer, f Format, l Listing, pretty bool) error {
	var (
		data []byte
		err  error
	)

	switch f {
	case FormatCSV:
		data, err = ToCSV(l)
	case FormatMarkdown:
		data, err = ToMarkdown(l)
	case FormatJSON:
		data, err = ToJSON(l, pretty)
	case FormatTable, "":
		data, err = ToTable(l)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, f)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// FormatFromPath picks a format from a file extension, falling back to f.
func FormatFromPath(path string, f Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".md", ".markdown":
		return FormatMarkdown
	case ".json":
		return FormatJSON
	default:
		return f
	}
}

// WriteFile exports l to path. The extension decides the format when it names one.
func WriteFile(path string, f Format, l Listing) error {
	if path == "" {
		return fmt.Errorf("%w: output path", shared.ErrMissingArgument)
	}

	var buf bytes.Buffer
	if err := Write(&buf, FormatFromPath(path, f), l, true); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ToCSV converts a listing to CSV with a header row.
func ToCSV(l Listing) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	for _, row := range l.Rows {
		if err := writer.Write(row.record()); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}
	return buf.Bytes(), nil
}

// ToMarkdown converts a listing to a Markdown document with a pipe table.
func ToMarkdown(l Listing) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", l.Title)
	fmt.Fprintf(&buf, "**Movies**: %d\n\n", len(l.Rows))
	if len(l.Rows) == 0 {
		return buf.Bytes(), nil
	}

	fmt.Fprintf(&buf, "| %s |\n", strings.Join(headers, " | "))
	fmt.Fprintf(&buf, "|%s\n", strings.Repeat(" --- |", len(headers)))
	for _, row := range l.Rows {
		cells := row.record()
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		fmt.Fprintf(&buf, "| %s |\n", strings.Join(cells, " | "))
	}
	return buf.Bytes(), nil
}

// ToJSON converts a listing to JSON.
func ToJSON(l Listing, pretty bool) ([]byte, error) {
	if l.Rows == nil {
		l.Rows = []Row{}
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(l, "", "  ")
	} else {
		data, err = json.Marshal(l)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to marshal listing: %w", err)
	}
	return append(data, '\n'), nil
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// ToTable renders a listing as a bordered terminal table under its title.
func ToTable(l Listing) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(titleStyle.Render(l.Title))
	buf.WriteString("\n")

	if len(l.Rows) == 0 {
		buf.WriteString("No movies.\n")
		return buf.Bytes(), nil
	}

	records := make([][]string, len(l.Rows))
	for i, row := range l.Rows {
		records[i] = row.record()
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(records...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	buf.WriteString(t.Render())
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

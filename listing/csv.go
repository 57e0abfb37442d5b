package listing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
)

// csvRow is the header layout of listing exports.
type csvRow struct {
	ID       string  `csv:"id"`
	Address  string  `csv:"address"`
	Location string  `csv:"location"`
	Size     string  `csv:"size"`
	Area     float64 `csv:"area"`
	Rent     int64   `csv:"rent"`
	FreeFrom string  `csv:"free_from"`
	URL      string  `csv:"url"`
}

// CSVSource reads listings from a CSV file with a header row.
type CSVSource struct {
	Path string
}

func (s *CSVSource) Fetch(ctx context.Context) ([]Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read listings csv: %w", err)
	}
	var rows []csvRow
	if err := csvutil.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode listings csv %s: %w", s.Path, err)
	}
	out := make([]Listing, 0, len(rows))
	for i, r := range rows {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			return nil, fmt.Errorf("listings csv %s: row %d without id", s.Path, i+2)
		}
		freeFrom, err := parseDate(r.FreeFrom)
		if err != nil {
			return nil, fmt.Errorf("listings csv %s: row %d: %w", s.Path, i+2, err)
		}
		out = append(out, Listing{
			ID:       id,
			Address:  strings.TrimSpace(r.Address),
			Location: strings.TrimSpace(r.Location),
			Size:     strings.TrimSpace(r.Size),
			Area:     r.Area,
			Rent:     r.Rent,
			FreeFrom: freeFrom,
			URL:      strings.TrimSpace(r.URL),
		})
	}
	return out, nil
}

package listing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const (
	DefaultSGSURL    = "https://minasidor.sgs.se/market/residential?pageSize=100"
	defaultUserAgent = "sgs-housing-bot/1.0"

	marketListSelector = "taiga-market-objects-list"
	marketCardSelector = "taiga-market-objects-list > div"
)

// ErrNoMarketList means the page has no listing container, typically
// because it was fetched without running its scripts.
var ErrNoMarketList = errors.New("market page has no listing container")

// SGSSource fetches the SGS residential market page over plain HTTP. It only
// works against a server that returns the list already rendered; the live
// site needs BrowserSource.
type SGSSource struct {
	URL        string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (s *SGSSource) Fetch(ctx context.Context) ([]Listing, error) {
	rawURL := strings.TrimSpace(s.URL)
	if rawURL == "" {
		rawURL = DefaultSGSURL
	}
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("listing url %q: %w", rawURL, err)
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, err
	}
	ua := s.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Accept", "text/html")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", base.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: non-2xx status: %d", base.Redacted(), resp.StatusCode)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, 16<<20), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Redacted(), err)
	}
	return parsePage(body, base, s.Logger)
}

func parsePage(r io.Reader, base *url.URL, log *slog.Logger) ([]Listing, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", base.Redacted(), err)
	}
	out, err := ParseSGS(doc, base, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", base.Redacted(), err)
	}
	return out, nil
}

// ParseSGS extracts listings from a rendered market page. Cards that cannot
// be parsed are logged and skipped. A page without the listing container
// returns ErrNoMarketList; a container without cards is logged and yields
// no listings.
func ParseSGS(doc *goquery.Document, base *url.URL, log *slog.Logger) ([]Listing, error) {
	if log == nil {
		log = slog.Default()
	}
	if doc.Find(marketListSelector).Length() == 0 {
		return nil, ErrNoMarketList
	}
	cards := doc.Find(marketCardSelector)
	if cards.Length() == 0 {
		log.Warn("listing_page_empty", "url", base.Redacted())
		return nil, nil
	}
	var out []Listing
	cards.Each(func(i int, card *goquery.Selection) {
		l, err := parseCard(card, base)
		if err != nil {
			log.Warn("listing_skipped", "index", i, "error", err.Error())
			return
		}
		out = append(out, l)
	})
	return out, nil
}

func parseCard(card *goquery.Selection, base *url.URL) (Listing, error) {
	id, _ := card.Find("mat-card").First().Attr("id")
	id = strings.TrimSpace(id)
	if id == "" {
		return Listing{}, fmt.Errorf("card without id")
	}
	l := Listing{
		ID:       id,
		Address:  firstLine(leadText(card.Find(".address").First())),
		Location: firstLine(leadText(card.Find(".location").First())),
		Size:     firstLine(leadText(card.Find(".size").First())),
	}
	var err error
	if l.Area, err = parseArea(leadText(card.Find(".area").First())); err != nil {
		return Listing{}, fmt.Errorf("%s: %w", id, err)
	}
	if l.Rent, err = parseRent(leadText(card.Find(".rent").First())); err != nil {
		return Listing{}, fmt.Errorf("%s: %w", id, err)
	}
	if l.FreeFrom, err = parseDate(leadText(card.Find(".free-from").First())); err != nil {
		return Listing{}, fmt.Errorf("%s: %w", id, err)
	}
	if l.Address == "" {
		return Listing{}, fmt.Errorf("%s: empty address", id)
	}
	l.URL = cardURL(card, base, id)
	return l, nil
}

// leadText is the text of the first non-blank child node. Card fields carry
// a caption after the value, which is dropped.
func leadText(sel *goquery.Selection) string {
	var text string
	sel.Contents().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if t := strings.TrimSpace(c.Text()); t != "" {
			text = t
			return false
		}
		return true
	})
	return text
}

func cardURL(card *goquery.Selection, base *url.URL, id string) string {
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return base.ResolveReference(ref).String()
		}
	}
	u := *base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + url.PathEscape(id)
	u.RawQuery = ""
	return u.String()
}

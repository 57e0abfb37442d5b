package listing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const marketPage = `<!doctype html>
<html><head><title>Mina Sidor</title></head><body>
<taiga-market-objects-list>
  <div>
    <mat-card id="123-4567">
      <a href="/market/residential/123-4567">details</a>
      <div class="address">Main St 1</div>
      <div class="location">Johanneberg</div>
      <div class="size">1 rum och kök
        <span>Storlek</span></div>
      <div class="area">30 m²<span>Yta</span></div>
      <div class="rent">7 000 kr<span>Hyra</span></div>
      <div class="free-from">2024-09-01<span>Inflytt</span></div>
    </mat-card>
  </div>
  <div>
    <mat-card id="broken">
      <div class="address">Side St 2</div>
      <div class="area">n/a</div>
    </mat-card>
  </div>
  <div>
    <mat-card id="999">
      <div class="address">Harbour 9</div>
      <div class="location">Lindholmen</div>
      <div class="size">Korridorrum</div>
      <div class="area">18,5 m²</div>
      <div class="rent">4 100 kr</div>
      <div class="free-from">2024-10-01</div>
    </mat-card>
  </div>
</taiga-market-objects-list>
</body></html>`

func TestSGSSource_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(marketPage))
	}))
	defer srv.Close()

	src := &SGSSource{URL: srv.URL + "/market/residential?pageSize=100", UserAgent: "test-agent", HTTPClient: srv.Client(), Timeout: 5 * time.Second}
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotUA != "test-agent" {
		t.Fatalf("User-Agent = %q, want test-agent", gotUA)
	}
	if len(got) != 2 {
		t.Fatalf("len(Fetch()) = %d, want 2 (broken card skipped)", len(got))
	}

	first := got[0]
	want := Listing{
		ID:       "123-4567",
		Address:  "Main St 1",
		Location: "Johanneberg",
		Size:     "1 rum och kök",
		Area:     30,
		Rent:     7000,
		FreeFrom: time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC),
		URL:      srv.URL + "/market/residential/123-4567",
	}
	if first != want {
		t.Fatalf("Fetch()[0] = %+v, want %+v", first, want)
	}
	if got[1].Area != 18.5 || got[1].Rent != 4100 {
		t.Fatalf("Fetch()[1] = %+v", got[1])
	}
	if !strings.HasSuffix(got[1].URL, "/market/residential/999") {
		t.Fatalf("Fetch()[1].URL = %q, want id-based fallback", got[1].URL)
	}
}

func TestSGSSource_Latin1(t *testing.T) {
	page := strings.Replace(marketPage, "Johanneberg", "G\xf6teborg", 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		_, _ = w.Write([]byte(strings.ReplaceAll(page, "²", "2")))
	}))
	defer srv.Close()

	got, err := (&SGSSource{URL: srv.URL, HTTPClient: srv.Client()}).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) == 0 || got[0].Location != "Göteborg" {
		t.Fatalf("Fetch()[0].Location = %+v, want Göteborg", got)
	}
}

func TestSGSSource_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := (&SGSSource{URL: srv.URL, HTTPClient: srv.Client()}).Fetch(context.Background()); err == nil {
		t.Fatal("expected error for 502")
	}
}

const shellPage = `<!doctype html>
<html><head><title>Mina Sidor</title><script src="main.js"></script></head>
<body><taiga-root></taiga-root></body></html>`

func TestParseSGS_ShellPage(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(shellPage))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, _ := url.Parse(DefaultSGSURL)
	got, err := ParseSGS(doc, base, nil)
	if !errors.Is(err, ErrNoMarketList) {
		t.Fatalf("ParseSGS(shell) = %v, %v, want ErrNoMarketList", got, err)
	}
}

func TestParseSGS_EmptyMarket(t *testing.T) {
	page := `<html><body><taiga-market-objects-list></taiga-market-objects-list></body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	base, _ := url.Parse(DefaultSGSURL)
	got, err := ParseSGS(doc, base, nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("ParseSGS(empty market) = %v, %v, want no listings and no error", got, err)
	}
}

func TestSGSSource_ShellPageIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(shellPage))
	}))
	defer srv.Close()

	got, err := (&SGSSource{URL: srv.URL, HTTPClient: srv.Client()}).Fetch(context.Background())
	if !errors.Is(err, ErrNoMarketList) {
		t.Fatalf("Fetch() = %v, %v, want ErrNoMarketList", got, err)
	}
}

// chromeBinary finds a local Chrome for the rendering test.
func chromeBinary() string {
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// scriptedPage only contains its listing after the script ran.
var scriptedPage = `<!doctype html>
<html><head><title>Mina Sidor</title></head><body><div id="app"></div>
<script>
setTimeout(function () {
  document.getElementById("app").innerHTML = ` + "`" + `<taiga-market-objects-list>` +
	`<div><mat-card id="777"><div class="address">Script St 7</div><div class="location">Haga</div>` +
	`<div class="size">1 rum</div><div class="area">22 m²</div><div class="rent">5 200 kr</div>` +
	`<div class="free-from">2024-11-01</div></mat-card></div></taiga-market-objects-list>` + "`" + `;
}, 100);
</script></body></html>`

func TestBrowserSource_RendersScripts(t *testing.T) {
	chrome := chromeBinary()
	if chrome == "" {
		t.Skip("no Chrome binary on PATH")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(scriptedPage))
	}))
	defer srv.Close()

	src := &BrowserSource{URL: srv.URL + "/market/residential", ExecPath: chrome, Timeout: 30 * time.Second}
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].ID != "777" || got[0].Rent != 5200 {
		t.Fatalf("Fetch() = %+v, want the scripted listing", got)
	}
}

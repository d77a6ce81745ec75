package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/smhanov/dossier"
)

const (
	defaultDDGEndpoint = "https://html.duckduckgo.com/html/"
	userAgent          = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ddgInterval is the minimum spacing between DuckDuckGo requests across all
// instances and goroutines.
var ddgInterval = time.Second

// DuckDuckGo searches through DuckDuckGo's HTML interface. No API key needed.
type DuckDuckGo struct {
	Endpoint   string // defaults to the html.duckduckgo.com form endpoint
	MaxResults int
	client     *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo searcher with a modest timeout.
func NewDuckDuckGo() *DuckDuckGo {
	return NewDuckDuckGoWithClient(&http.Client{Timeout: 15 * time.Second})
}

// NewDuckDuckGoWithClient creates a DuckDuckGo searcher using the supplied HTTP client.
func NewDuckDuckGoWithClient(client *http.Client) *DuckDuckGo {
	return &DuckDuckGo{Endpoint: defaultDDGEndpoint, MaxResults: defaultMaxResults, client: client}
}

// Search posts the query to the HTML endpoint and parses the result list.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]dossier.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("duckduckgo: query is empty")
	}
	endpoint := d.Endpoint
	if endpoint == "" {
		endpoint = defaultDDGEndpoint
	}
	form := url.Values{}
	form.Set("q", query)

	g := gateFor("duckduckgo")
	if err := g.waitAndLock(ctx); err != nil {
		return nil, err
	}
	resp, err := doWithBackoff(ctx, d.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	g.unlock(ddgInterval)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo http %d", resp.StatusCode)
	}
	results, err := parseDDG(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	return clean(results, d.MaxResults), nil
}

// parseDDG walks a DuckDuckGo results page. Both the html endpoint
// (a.result__a / .result__snippet) and the lite endpoint (a.result-link /
// td.result-snippet) are understood. Ad blocks (.result--ad) are skipped.
func parseDDG(r io.Reader) ([]dossier.SearchResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var results []dossier.SearchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result--ad"):
				return
			case n.Data == "a" && (hasClass(n, "result__a") || hasClass(n, "result-link")):
				results = append(results, dossier.SearchResult{
					Title: nodeText(n),
					URL:   resolveRedirect(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") || hasClass(n, "result-snippet"):
				if len(results) > 0 && results[len(results)-1].Snippet == "" {
					results[len(results)-1].Snippet = nodeText(n)
				}
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapse(b.String())
}

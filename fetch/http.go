// Package fetch reads web pages as plain text for the search agent.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	defaultMaxBytes = 32 * 1024 // text kept per page
	maxBodyBytes    = 2 << 20   // bytes read from the wire
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// HTTPFetcher retrieves a page and reduces it to readable text.
type HTTPFetcher struct {
	MaxBytes int // text limit; defaults to 32KB
	client   *http.Client
}

// NewHTTP creates a HTTP fetcher with a modest timeout.
func NewHTTP() *HTTPFetcher {
	return NewHTTPWithClient(&http.Client{Timeout: 15 * time.Second})
}

// NewHTTPWithClient creates a fetcher using the supplied HTTP client.
func NewHTTPWithClient(client *http.Client) *HTTPFetcher {
	return &HTTPFetcher{MaxBytes: defaultMaxBytes, client: client}
}

// Fetch downloads url, strips markup and truncates the text to MaxBytes.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	trimmed := strings.TrimSpace(url)
	if trimmed == "" {
		return "", errors.New("fetch url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, trimmed, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("fetch http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	body := io.LimitReader(resp.Body, maxBodyBytes)
	var text string
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(string(raw))
	} else {
		text, err = extractText(body)
		if err != nil {
			return "", err
		}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = defaultMaxBytes
	}
	if len(text) > limit {
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		text = text[:limit] + "\n[TRUNCATED]"
	}
	return text, nil
}

// skipped elements never contribute text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"svg": true, "form": true, "iframe": true,
}

// block elements end the current line.
var block = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "pre": true, "blockquote": true, "table": true,
}

// extractText tokenizes r and keeps the visible text, one block per line.
func extractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var lines []string
	var cur strings.Builder
	depth := 0

	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			flush()
			return strings.Join(lines, "\n"), nil
		case html.StartTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipped[tag] {
				depth++
			} else if block[tag] {
				flush()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipped[tag] && depth > 0 {
				depth--
			} else if block[tag] {
				flush()
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			if block[string(name)] {
				flush()
			}
		case html.TextToken:
			if depth == 0 {
				cur.Write(z.Text())
				cur.WriteByte(' ')
			}
		}
	}
}

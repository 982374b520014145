package extract

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

// ExtractURL fetches an http(s) page and returns its visible text with
// whitespace collapsed.
func (r *Reader) ExtractURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", domain.InvalidParameter("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", domain.InvalidParameter("only http and https urls are supported")
	}
	if u.Host == "" {
		return "", domain.InvalidParameter("url has no host")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch %s: %v", domain.ErrExtraction, u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: fetch %s: status %d", domain.ErrExtraction, u.Host, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	body := io.LimitReader(resp.Body, r.maxPageBytes)

	var text string
	switch {
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		text, err = htmlText(body, contentType)
	case mediaType == "text/plain":
		var data []byte
		if data, err = io.ReadAll(body); err == nil {
			text, err = decodeText(data, contentType)
		}
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedType, mediaType)
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, u.Host, err)
	}

	text = collapseSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found at %s", domain.ErrExtraction, u.String())
	}

	logger.InfoCF("extract", "Extracted page text", map[string]any{
		"host":  u.Host,
		"chars": len(text),
	})
	return text, nil
}

// skippedElements hold no readable text.
var skippedElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

// htmlText returns the text nodes of a page outside script and style elements.
func htmlText(body io.Reader, contentType string) (string, error) {
	utf8Body, err := charset.NewReader(body, contentType)
	if err != nil {
		return "", err
	}

	var (
		b    strings.Builder
		skip int
	)
	z := html.NewTokenizer(utf8Body)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return b.String(), nil
			}
			return "", z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skippedElements[string(name)] && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

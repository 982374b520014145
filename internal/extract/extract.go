// Package extract pulls plain text out of uploaded documents and web pages.
package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h2non/filetype"

	"github.com/chineduokotu/document-text-to-speech-converter/internal/domain"
	"github.com/chineduokotu/document-text-to-speech-converter/internal/logger"
)

// Supported document formats, keyed by file extension.
const (
	FormatText = ".txt"
	FormatPDF  = ".pdf"
	FormatDOCX = ".docx"
	FormatPPTX = ".pptx"
)

// Extractor turns a document or a web page into text to be spoken.
type Extractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
	ExtractURL(ctx context.Context, rawURL string) (string, error)
}

// Reader is the Extractor for local documents and http(s) pages.
type Reader struct {
	client       *http.Client
	maxPageBytes int64
	userAgent    string
}

// NewReader creates a reader whose page fetches give up after timeout.
func NewReader(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reader{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		maxPageBytes: 10 << 20,
		userAgent:    "Mozilla/5.0 (compatible; ttsd/1.0)",
	}
}

// Format returns the normalized extension of name, or ErrUnsupportedType.
func Format(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case FormatText, FormatPDF, FormatDOCX, FormatPPTX:
		return ext, nil
	default:
		return "", fmt.Errorf("%w: %q (supported: .txt, .pdf, .docx, .pptx)", domain.ErrUnsupportedType, ext)
	}
}

// ExtractFile reads the document at path. The extension picks the parser and
// the content must agree with it.
func (r *Reader) ExtractFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	format, err := Format(path)
	if err != nil {
		return "", err
	}
	if err := sniff(path, format); err != nil {
		return "", err
	}

	var text string
	switch format {
	case FormatText:
		text, err = readText(path)
	case FormatPDF:
		text, err = readPDF(path)
	case FormatDOCX:
		text, err = readDOCX(path)
	case FormatPPTX:
		text, err = readPPTX(path)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrExtraction, filepath.Base(path), err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: no text found in %s", domain.ErrExtraction, filepath.Base(path))
	}

	logger.InfoCF("extract", "Extracted document text", map[string]any{
		"file":   filepath.Base(path),
		"format": format,
		"chars":  len(text),
	})
	return text, nil
}

// sniff checks the leading bytes of path against the claimed format.
func sniff(path, format string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	defer f.Close()

	head := make([]byte, 8192)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return fmt.Errorf("%w: %v", domain.ErrExtraction, err)
	}
	kind, _ := filetype.Match(head[:n])

	ok := false
	switch format {
	case FormatText:
		ok = kind == filetype.Unknown
	case FormatPDF:
		ok = kind.Extension == "pdf"
	case FormatDOCX:
		ok = kind.Extension == "docx" || kind.Extension == "zip"
	case FormatPPTX:
		ok = kind.Extension == "pptx" || kind.Extension == "zip"
	}
	if !ok {
		found := kind.MIME.Value
		if found == "" {
			found = "unrecognized data"
		}
		return fmt.Errorf("%w: %s content is %s", domain.ErrUnsupportedType, format, found)
	}
	return nil
}

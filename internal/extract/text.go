package extract

import (
	"os"
	"strings"

	"golang.org/x/net/html/charset"
)

// readText decodes a plain text file, guessing its encoding from a BOM or
// falling back to windows-1252 when the bytes are not valid UTF-8.
func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return decodeText(data, "text/plain")
}

func decodeText(data []byte, contentType string) (string, error) {
	enc, _, _ := charset.DetermineEncoding(data, contentType)
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(decoded), "\ufeff"), nil
}

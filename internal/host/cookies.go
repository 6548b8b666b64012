package host

import (
	"errors"
	"strings"

	"serpcompanion/internal/fileutil"
)

// saveCookies stores Netscape-format cookie text where the downloader reads
// it with --browser file.
func saveCookies(path, text string) (int, error) {
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("empty cookie file")
	}
	data := []byte(text)
	if !strings.HasSuffix(text, "\n") {
		data = append(data, '\n')
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return 0, err
	}
	return len(data), nil
}

// Package discovery finds papers in a remote catalog, downloads them and
// recommends related work. Search returns metadata only; content is fetched
// in a separate step.
package discovery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Paper is catalog metadata for one paper.
type Paper struct {
	ID         string
	Title      string
	Authors    []string
	Abstract   string
	Published  time.Time
	PDFURL     string
	Categories []string
}

// AuthorLine lists the first three authors, adding "et al." when there are more.
func (p Paper) AuthorLine() string {
	if len(p.Authors) <= 3 {
		return strings.Join(p.Authors, ", ")
	}
	return strings.Join(p.Authors[:3], ", ") + " et al."
}

// FileName is the local file name a downloaded PDF is stored under.
func (p Paper) FileName() string {
	return strings.ReplaceAll(p.ID, "/", "_") + ".pdf"
}

// Catalog is a remote paper index.
type Catalog interface {
	Search(ctx context.Context, query string, maxResults int) ([]Paper, error)
	// Fetch opens the paper's PDF. The caller closes it.
	Fetch(ctx context.Context, paper Paper) (io.ReadCloser, error)
}

// Download stores the paper's PDF in dir and returns its path. An existing
// file is reused without contacting the catalog.
func Download(ctx context.Context, catalog Catalog, paper Paper, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, paper.FileName())
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	body, err := catalog.Fetch(ctx, paper)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", paper.ID, err)
	}
	defer body.Close()

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("download %s: %w", paper.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// ExtractKeywords builds a catalog query from the head of a paper: the
// first three non-empty lines of its first 500 characters, page markers
// removed, capped at 150 characters.
func ExtractKeywords(text string) string {
	r := []rune(text)
	snippet := string(r[:min(len(r), 500)])
	var lines []string
	for _, l := range strings.Split(snippet, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || isPageMarker(l) {
			continue
		}
		lines = append(lines, l)
		if len(lines) == 3 {
			break
		}
	}
	kw := []rune(strings.Join(lines, " "))
	return string(kw[:min(len(kw), 150)])
}

func isPageMarker(line string) bool {
	return strings.HasPrefix(line, "--- PAGE ") && strings.HasSuffix(line, " ---")
}

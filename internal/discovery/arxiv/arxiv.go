// Package arxiv implements discovery.Catalog on the arXiv export API.
package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paperrag/internal/discovery"
	"paperrag/internal/domain"
)

const (
	DefaultBaseURL = "https://export.arxiv.org"
	maxCategories  = 2
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client queries arXiv over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ discovery.Catalog = (*Client)(nil)

func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{baseURL: base, client: client}
}

type feed struct {
	Entries []entry `xml:"http://www.w3.org/2005/Atom entry"`
}

type entry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	Links []struct {
		Href  string `xml:"href,attr"`
		Title string `xml:"title,attr"`
		Type  string `xml:"type,attr"`
	} `xml:"http://www.w3.org/2005/Atom link"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"http://www.w3.org/2005/Atom category"`
}

// Search runs a relevance-sorted query over all fields.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]discovery.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyInput
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	q := url.Values{}
	q.Set("search_query", "all:"+query)
	q.Set("start", "0")
	q.Set("max_results", strconv.Itoa(maxResults))
	q.Set("sortBy", "relevance")
	q.Set("sortOrder", "descending")

	body, err := c.get(ctx, c.baseURL+"/api/query?"+q.Encode())
	if err != nil {
		return nil, domain.Upstream("arxiv", "search", err)
	}
	defer body.Close()

	var f feed
	if err := xml.NewDecoder(body).Decode(&f); err != nil {
		return nil, domain.Upstream("arxiv", "search", fmt.Errorf("decode feed: %w", err))
	}
	papers := make([]discovery.Paper, 0, len(f.Entries))
	for _, e := range f.Entries {
		papers = append(papers, e.paper())
	}
	return papers, nil
}

// Fetch downloads the paper's PDF, falling back to /pdf/<id> when the feed
// carried no PDF link.
func (c *Client) Fetch(ctx context.Context, paper discovery.Paper) (io.ReadCloser, error) {
	link := paper.PDFURL
	if link == "" {
		if paper.ID == "" {
			return nil, fmt.Errorf("%w: paper has no id", domain.ErrInvalidInput)
		}
		link = c.baseURL + "/pdf/" + paper.ID
	}
	body, err := c.get(ctx, link)
	if err != nil {
		return nil, domain.Upstream("arxiv", "fetch "+paper.ID, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp.Body, nil
}

func (e entry) paper() discovery.Paper {
	p := discovery.Paper{
		ID:       shortID(e.ID),
		Title:    collapse(e.Title),
		Abstract: collapse(e.Summary),
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
		p.Published = t
	}
	for _, a := range e.Authors {
		if name := strings.TrimSpace(a.Name); name != "" {
			p.Authors = append(p.Authors, name)
		}
	}
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			p.PDFURL = l.Href
			break
		}
	}
	for _, cat := range e.Categories {
		if len(p.Categories) == maxCategories {
			break
		}
		p.Categories = append(p.Categories, cat.Term)
	}
	return p
}

// shortID turns "http://arxiv.org/abs/2101.00001v2" into "2101.00001v2".
// Old-style ids such as "hep-th/9901001v1" keep their archive prefix.
func shortID(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, "/abs/"); i >= 0 {
		return id[i+len("/abs/"):]
	}
	return id
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package arxiv

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperrag/internal/discovery"
	"paperrag/internal/domain"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>ArXiv Query</title>
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models are based on
      recurrent networks.  </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name></author>
    <author><name>Niki Parmar</name></author>
    <author><name>Jakob Uszkoreit</name></author>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
    <category term="stat.ML"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/hep-th/9901001v1</id>
    <published>1999-01-01T00:00:00Z</published>
    <title>Old Style</title>
    <summary>Strings.</summary>
    <author><name>A. Physicist</name></author>
  </entry>
</feed>`

func TestSearchParsesFeed(t *testing.T) {
	var got http.Header
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/query", r.URL.Path)
		got = r.Header
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/atom+xml")
		io.WriteString(w, atomFeed)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/"})
	papers, err := c.Search(context.Background(), "attention transformers", 20)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Contains(t, query, "search_query=all%3Aattention+transformers")
	assert.Contains(t, query, "max_results=20")
	assert.Contains(t, query, "sortBy=relevance")

	require.Len(t, papers, 2)
	p := papers[0]
	assert.Equal(t, "1706.03762v7", p.ID)
	assert.Equal(t, "Attention Is All You Need", p.Title)
	assert.Equal(t, "The dominant sequence transduction models are based on recurrent networks.", p.Abstract)
	assert.Equal(t, "2017-06-12", p.Published.Format("2006-01-02"))
	assert.Equal(t, "Ashish Vaswani, Noam Shazeer, Niki Parmar et al.", p.AuthorLine())
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", p.PDFURL)
	assert.Equal(t, []string{"cs.CL", "cs.LG"}, p.Categories)

	assert.Equal(t, "hep-th/9901001v1", papers[1].ID)
	assert.Equal(t, "hep-th_9901001v1.pdf", papers[1].FileName())
	assert.Empty(t, papers[1].PDFURL)
}

func TestSearchRejectsBlankQuery(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Search(context.Background(), "  ", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearchServerErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(Config{BaseURL: srv.URL}).Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamFailure))
	assert.Contains(t, err.Error(), "503")
}

func TestFetchFallsBackToPDFPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pdf/hep-th/9901001v1" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "%PDF-1.4")
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	body, err := c.Fetch(context.Background(), discovery.Paper{ID: "hep-th/9901001v1"})
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	_, err = c.Fetch(context.Background(), discovery.Paper{ID: "missing"})
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
}

package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
)

func TestExtract_CitationMetaWinsOverOpenGraph(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<meta name="citation_title" content="Deep Learning for Citations">
		<meta name="citation_author" content="Doe, Jane">
		<meta name="citation_publication_date" content="2023-05-10">
		<meta name="citation_journal_title" content="Nature">
		<meta property="og:title" content="Clickbait Headline">
		<meta property="article:published_time" content="2024-01-01T00:00:00Z">
	</head><body><h1>Yet Another Title</h1></body></html>`

	e := New(DefaultConfig(), zap.NewNop())
	md := e.Extract([]byte(html), "text/html", "https://example.com/article")

	require.Equal(t, "Deep Learning for Citations", md.Title)
	require.Equal(t, sourceCitationMeta, md.Sources["title"])
	require.Equal(t, "2023-05-10", md.Date)
	require.Equal(t, "Nature", md.PublicationTitle)
	require.Equal(t, "journalArticle", md.ItemType)
	require.Len(t, md.Creators, 1)
	require.Equal(t, "Doe", md.Creators[0].LastName)
	require.Equal(t, "Jane", md.Creators[0].FirstName)
	require.True(t, Complete(md))
}

func TestExtract_FallsThroughToOpenGraphAndDOM(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<meta property="og:title" content="A Blog Entry">
		<meta property="article:published_time" content="2022-11-03T10:00:00Z">
	</head><body><div class="author">By Sam Smith</div></body></html>`

	e := New(DefaultConfig(), zap.NewNop())
	md := e.Extract([]byte(html), "text/html", "https://blog.example.com/entry")

	require.Equal(t, "A Blog Entry", md.Title)
	require.Equal(t, sourceOpenGraph, md.Sources["title"])
	require.Equal(t, "2022-11-03", md.Date)
	require.Equal(t, sourceDOM, md.Sources["creators"])
	require.Equal(t, "blogPost", md.ItemType, "host containing 'blog' implies a blog post")
}

func TestExtract_JSONLDScholarlyArticle(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	{"@type":"ScholarlyArticle","headline":"Graphs Everywhere",
	 "author":[{"name":"Ada Lovelace"}],"datePublished":"2021-07-01"}
	</script></head><body></body></html>`

	e := New(DefaultConfig(), zap.NewNop())
	md := e.Extract([]byte(html), "text/html", "https://example.org/p/1")

	require.Equal(t, "Graphs Everywhere", md.Title)
	require.Equal(t, sourceJSONLD, md.Sources["title"])
	require.Equal(t, "journalArticle", md.ItemType)
	require.Equal(t, "2021-07-01", md.Date)
	require.Len(t, md.Creators, 1)
	require.Equal(t, "Lovelace", md.Creators[0].LastName)
}

func TestExtract_DomainPatternTable(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())

	md := e.Extract([]byte("<html><head><title>Some Preprint</title></head></html>"),
		"text/html", "https://arxiv.org/abs/2301.04567")
	require.Equal(t, "preprint", md.ItemType)

	md = e.Extract([]byte("<html><head><title>A Clip</title></head></html>"),
		"text/html", "https://www.youtube.com/watch?v=x")
	require.Equal(t, "videoRecording", md.ItemType)
}

func TestExtract_DefaultItemTypeAndPartialResult(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())
	md := e.Extract([]byte("<html><head></head><body><p>nothing here</p></body></html>"),
		"text/html", "https://example.com/page")

	require.Equal(t, "webpage", md.ItemType)
	require.False(t, Complete(md))
	require.Contains(t, MissingCriticalFields(md), "title")
	require.Contains(t, MissingCriticalFields(md), "creators")
	require.Contains(t, MissingCriticalFields(md), "date")
}

func TestMergeMissing_OnlyFillsEmptyFields(t *testing.T) {
	t.Parallel()

	dst := citation.ExtractedMetadata{Title: "Kept Title"}
	dst.SetSource("title", sourceCitationMeta)
	src := citation.ExtractedMetadata{
		Title:    "AI Title",
		Date:     "2020-01-02",
		Creators: []citation.Creator{{Type: citation.CreatorAuthor, Name: "Bot"}},
	}

	out := MergeMissing(dst, src, SourceAI)

	require.Equal(t, "Kept Title", out.Title)
	require.Equal(t, sourceCitationMeta, out.Sources["title"])
	require.Equal(t, "2020-01-02", out.Date)
	require.Equal(t, SourceAI, out.Sources["date"])
	require.True(t, UsedStrategy(out, SourceAI))
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2023-05-10", NormalizeDate("2023-05-10T08:30:00Z"))
	require.Equal(t, "2019-03-04", NormalizeDate("March 4, 2019"))
	require.Equal(t, "2021-06", NormalizeDate("June 2021"))
	require.Equal(t, "1998", NormalizeDate("1998"))
	require.Equal(t, "circa 1850", NormalizeDate("circa 1850"), "unparseable dates kept verbatim")
	require.Equal(t, "", NormalizeDate("  "))
}

func TestValidate_RequiredFieldsPerItemType(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())

	md := citation.ExtractedMetadata{Title: "T", Date: "2020", ItemType: "journalArticle"}
	missing := e.Validate(md)
	require.ElementsMatch(t, []string{"creators", "publicationTitle"}, missing)

	md = citation.ExtractedMetadata{Title: "T", Date: "2020", ItemType: "webpage"}
	require.Empty(t, e.Validate(md))
}

func TestExtract_MalformedContentIsNotFatal(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())
	md := e.Extract([]byte{0xff, 0xfe}, "application/pdf", "https://example.com/x.pdf")

	require.Equal(t, "webpage", md.ItemType)
	require.False(t, Complete(md))
}

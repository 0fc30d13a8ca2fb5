package identifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/citepipe/citepipe/internal/citation"
)

func TestNormalize_Idempotent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typ citation.IdentifierType
		raw string
	}{
		{citation.IdentifierDOI, "https://doi.org/10.1038/S41586-023-12345-6"},
		{citation.IdentifierDOI, "doi:10.1000/xyz123."},
		{citation.IdentifierPMID, "PMID: 12345678"},
		{citation.IdentifierArXiv, "arXiv:2301.04567v2"},
		{citation.IdentifierISBN, "ISBN-13: 978-0-306-40615-7"},
	}
	for _, tc := range cases {
		once := Normalize(tc.raw, tc.typ)
		twice := Normalize(once, tc.typ)
		require.Equal(t, once, twice, "normalize must be idempotent for %s %q", tc.typ, tc.raw)
	}
}

func TestNormalize_CanonicalForms(t *testing.T) {
	t.Parallel()

	require.Equal(t, "10.1038/s41586-023-12345-6",
		Normalize("https://doi.org/10.1038/S41586-023-12345-6", citation.IdentifierDOI))
	require.Equal(t, "12345678", Normalize("PMID: 12345678", citation.IdentifierPMID))
	require.Equal(t, "2301.04567v2", Normalize("arXiv:2301.04567v2", citation.IdentifierArXiv))
	require.Equal(t, "9780306406157", Normalize("ISBN-13: 978-0-306-40615-7", citation.IdentifierISBN))
}

func TestValid_RejectsMalformedValues(t *testing.T) {
	t.Parallel()

	require.False(t, Valid("11.1038/nope", citation.IdentifierDOI))
	require.False(t, Valid("123", citation.IdentifierPMID))
	require.False(t, Valid("123456789", citation.IdentifierPMID), "9 digits is out of range")
	require.False(t, Valid("2301.123", citation.IdentifierArXiv))
	require.False(t, Valid("12345", citation.IdentifierISBN))
	require.True(t, Valid("10.1038/s41586-023-12345-6", citation.IdentifierDOI))
	require.True(t, Valid("0306406152", citation.IdentifierISBN))
	require.True(t, Valid("9780306406157", citation.IdentifierISBN))
}

func TestExtract_MetaTagDOI(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<meta name="citation_doi" content="10.1038/s41586-023-12345-6">
		<meta name="citation_title" content="Some Paper">
	</head><body></body></html>`

	e := New(DefaultConfig(), zap.NewNop())
	ids := e.Extract([]byte(html), "text/html", "https://example.com/paper")

	require.Len(t, ids, 1)
	require.Equal(t, citation.IdentifierDOI, ids[0].Type)
	require.Equal(t, "10.1038/s41586-023-12345-6", ids[0].Value)
	require.Equal(t, citation.ConfidenceHigh, ids[0].Confidence)
	require.Equal(t, "meta:citation_doi", ids[0].Source)
}

func TestExtract_JSONLDIdentifier(t *testing.T) {
	t.Parallel()

	html := `<html><head><script type="application/ld+json">
	{"@type":"ScholarlyArticle","identifier":{"propertyID":"doi","value":"10.5555/abc.def"}}
	</script></head><body></body></html>`

	e := New(DefaultConfig(), zap.NewNop())
	ids := e.Extract([]byte(html), "text/html", "https://example.com")

	require.Len(t, ids, 1)
	require.Equal(t, citation.IdentifierDOI, ids[0].Type)
	require.Equal(t, "10.5555/abc.def", ids[0].Value)
	require.Equal(t, citation.ConfidenceHigh, ids[0].Confidence)
}

func TestExtract_FreeTextConfidenceByPosition(t *testing.T) {
	t.Parallel()

	early := "See doi.org/10.1000/early for details. "
	padding := strings.Repeat("lorem ipsum ", 100)
	late := " referenced as doi.org/10.1000/late in the appendix"

	e := New(DefaultConfig(), zap.NewNop())
	ids := e.Extract([]byte(early+padding+late), "text/plain", "")

	require.Len(t, ids, 2)
	byValue := map[string]citation.Confidence{}
	for _, id := range ids {
		byValue[id.Value] = id.Confidence
	}
	require.Equal(t, citation.ConfidenceMedium, byValue["10.1000/early"])
	require.Equal(t, citation.ConfidenceLow, byValue["10.1000/late"])
}

func TestDedup_KeepsHighestConfidence(t *testing.T) {
	t.Parallel()

	ids := []citation.Identifier{
		{Type: citation.IdentifierDOI, Value: "10.1000/x", Source: "free-text", Confidence: citation.ConfidenceLow},
		{Type: citation.IdentifierDOI, Value: "10.1000/x", Source: "meta:citation_doi", Confidence: citation.ConfidenceHigh},
		{Type: citation.IdentifierDOI, Value: "10.1000/x", Source: "jsonld", Confidence: citation.ConfidenceMedium},
	}
	out := Dedup(ids)

	require.Len(t, out, 1)
	require.Equal(t, citation.ConfidenceHigh, out[0].Confidence)
	require.Equal(t, "meta:citation_doi", out[0].Source)
}

func TestDedup_TieKeepsFirstSeen(t *testing.T) {
	t.Parallel()

	ids := []citation.Identifier{
		{Type: citation.IdentifierPMID, Value: "12345678", Source: "first", Confidence: citation.ConfidenceMedium},
		{Type: citation.IdentifierPMID, Value: "12345678", Source: "second", Confidence: citation.ConfidenceMedium},
	}
	out := Dedup(ids)

	require.Len(t, out, 1)
	require.Equal(t, "first", out[0].Source)
}

func TestRank_TypePriorityThenConfidence(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())
	ids := []citation.Identifier{
		{Type: citation.IdentifierISBN, Value: "9780306406157", Confidence: citation.ConfidenceHigh},
		{Type: citation.IdentifierDOI, Value: "10.1000/low", Confidence: citation.ConfidenceLow},
		{Type: citation.IdentifierDOI, Value: "10.1000/high", Confidence: citation.ConfidenceHigh},
		{Type: citation.IdentifierPMID, Value: "12345678", Confidence: citation.ConfidenceMedium},
	}
	e.Rank(ids)

	require.Equal(t, "10.1000/high", ids[0].Value)
	require.Equal(t, "10.1000/low", ids[1].Value)
	require.Equal(t, citation.IdentifierPMID, ids[2].Type)
	require.Equal(t, citation.IdentifierISBN, ids[3].Type)
}

func TestExtract_MalformedContentYieldsEmptySet(t *testing.T) {
	t.Parallel()

	e := New(DefaultConfig(), zap.NewNop())

	require.Empty(t, e.Extract([]byte{0x00, 0x01, 0x02}, "application/pdf", ""))
	require.Empty(t, e.Extract(nil, "text/html", ""))
}

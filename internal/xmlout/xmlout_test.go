package xmlout_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/projection"
	"github.com/rezonia/facturx/internal/schema"
	"github.com/rezonia/facturx/internal/validate"
	"github.com/rezonia/facturx/internal/xmlout"
)

func testTree(t *testing.T, data map[string]any) *projection.Tree {
	t.Helper()
	codes, err := codelist.Default()
	require.NoError(t, err)

	p := &schema.Profile{
		ID:                 "test",
		AttachmentFileName: "factur-x.xml",
		RootElement:        "rsm:Doc",
		Namespaces: []schema.Namespace{
			{Prefix: "rsm", URI: "urn:test:rsm"},
			{Prefix: "qdt", URI: "urn:test:qdt"},
			{Prefix: "ram", URI: "urn:test:ram"},
			{Prefix: "udt", URI: "urn:test:udt"},
		},
		Root: schema.Object(".",
			schema.Field("id", schema.String("rsm:Header/ram:ID")),
			schema.Field("note", schema.String("rsm:Header/ram:Note").Optional()),
			schema.Field("date", schema.Date("rsm:Header/ram:Issue/udt:DateTimeString").
				Optional().
				Transform(validate.FormatDate).
				XML("@format", "102")),
		),
	}
	schema.MustCompile(p, codes)

	tree, err := validate.Validate(p, data)
	require.NoError(t, err)
	out, err := projection.Project(p, tree)
	require.NoError(t, err)
	return out
}

func TestSerialize(t *testing.T) {
	tree := testTree(t, map[string]any{"id": "A&B <1>", "date": "2024-03-05"})

	out, err := xmlout.Serialize(tree)
	require.NoError(t, err)

	s := string(out)
	assert.True(t, strings.HasPrefix(s, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, s, `<rsm:Doc xmlns:rsm="urn:test:rsm" xmlns:ram="urn:test:ram" xmlns:udt="urn:test:udt">`)
	assert.NotContains(t, s, "xmlns:qdt", "unused prefixes are not declared")
	assert.Contains(t, s, `<ram:ID>A&amp;B &lt;1&gt;</ram:ID>`)
	assert.Contains(t, s, `<udt:DateTimeString format="102">20240305</udt:DateTimeString>`)
	assert.Equal(t, 1, strings.Count(s, "\n"), "no indentation by default")
}

func TestSerialize_OnlyUsedPrefixes(t *testing.T) {
	tree := testTree(t, map[string]any{"id": "1"})

	out, err := xmlout.Serialize(tree)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "xmlns:udt")
	assert.Contains(t, string(out), "xmlns:ram")
}

func TestSerialize_Deterministic(t *testing.T) {
	data := map[string]any{"id": "1", "note": "n", "date": "20240101"}

	first, err := xmlout.Serialize(testTree(t, data))
	require.NoError(t, err)
	second, err := xmlout.Serialize(testTree(t, data))
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first, second))
}

func TestSerialize_DoesNotModifyTree(t *testing.T) {
	tree := testTree(t, map[string]any{"id": "1"})

	_, err := xmlout.Serialize(tree)
	require.NoError(t, err)
	assert.Empty(t, tree.Root().Attr)

	again, err := xmlout.Serialize(tree)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(again), `xmlns:rsm=`))
}

func TestSerialize_RoundTrip(t *testing.T) {
	tree := testTree(t, map[string]any{"id": "1", "date": "20240101"})

	out, err := xmlout.Serialize(tree)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(out))
	assert.Equal(t, "urn:test:rsm", doc.Root().NamespaceURI())
	id := doc.FindElement("//ID")
	require.NotNil(t, id)
	assert.Equal(t, "urn:test:ram", id.NamespaceURI())
}

func TestSerialize_WithIndent(t *testing.T) {
	tree := testTree(t, map[string]any{"id": "1", "note": "x"})

	out, err := xmlout.Serialize(tree, xmlout.WithIndent(2))
	require.NoError(t, err)
	assert.Contains(t, string(out), "\n  <rsm:Header>")
}

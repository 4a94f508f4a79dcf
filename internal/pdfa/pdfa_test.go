package pdfa_test

import (
	"crypto/sha256"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/pdfa"
	"github.com/rezonia/facturx/internal/pdfa/pdfatest"
	"github.com/rezonia/facturx/internal/profile"
	"github.com/rezonia/facturx/internal/schema"
)

var invoiceXML = []byte(`<?xml version="1.0" encoding="UTF-8"?>
<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"/>`)

var fixedClock = func() time.Time {
	return time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
}

func en16931(t *testing.T) *schema.Profile {
	t.Helper()
	reg, err := profile.Default()
	require.NoError(t, err)
	p, err := reg.Get(profile.EN16931)
	require.NoError(t, err)
	return p
}

func TestEmbedRoundTrip(t *testing.T) {
	p := en16931(t)

	out, err := pdfa.Embed(pdfatest.New(), invoiceXML, p, pdfa.WithClock(fixedClock))
	require.NoError(t, err)

	files, err := pdfa.ListEmbeddedFiles(out)
	require.NoError(t, err)
	require.Len(t, files, 1)

	f := files[0]
	assert.Equal(t, "factur-x.xml", f.Name)
	assert.Equal(t, invoiceXML, f.Data)
	assert.Equal(t, model.MimeTypeXML, f.MimeType)
	assert.Equal(t, model.RelationshipAlternative, f.Relationship)
	assert.Equal(t, "Factur-X invoice (EN 16931)", f.Description)
	assert.True(t, fixedClock().Equal(f.ModDate), "mod date %v", f.ModDate)

	info, err := pdfa.Metadata(out)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "3", info.Part)
	assert.Equal(t, "B", info.Conformance)
	assert.Equal(t, "INVOICE", info.DocumentType)
	assert.Equal(t, "factur-x.xml", info.DocumentFileName)
	assert.Equal(t, "1.0", info.Version)
	assert.Equal(t, "EN 16931", info.ConformanceLevel)
	assert.Contains(t, string(info.Raw), "Factur-X PDFA Extension Schema")
	assert.Contains(t, string(info.Raw), "2024-03-01T12:30:00Z")

	version, err := pdfa.Version(out)
	require.NoError(t, err)
	assert.Equal(t, "1.7", version)
}

func TestEmbedLeavesInputUntouched(t *testing.T) {
	in := pdfatest.New(pdfatest.WithTitle("Invoice 42"))
	xml := append([]byte(nil), invoiceXML...)
	before := sha256.Sum256(in)

	_, err := pdfa.Embed(in, xml, en16931(t))
	require.NoError(t, err)

	assert.Equal(t, before, sha256.Sum256(in))
	assert.Equal(t, invoiceXML, xml)
}

func TestEmbedRejectsBrokenInput(t *testing.T) {
	p := en16931(t)
	tests := []struct {
		name string
		pdf  []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"not a pdf", []byte("<html>invoice</html>")},
		{"header only", []byte("%PDF-1.4\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := pdfa.Embed(tt.pdf, invoiceXML, p)
			require.Error(t, err)
			assert.Nil(t, out)

			var pdfErr *model.PdfStructureError
			assert.True(t, errors.As(err, &pdfErr), "got %T", err)

			_, err = pdfa.ListEmbeddedFiles(tt.pdf)
			assert.True(t, errors.As(err, &pdfErr), "got %T", err)
		})
	}
}

func TestEmbedRequiresProfile(t *testing.T) {
	_, err := pdfa.Embed(pdfatest.New(), invoiceXML, nil)
	assert.Error(t, err)
}

func TestEmbedPreservesExistingMetadata(t *testing.T) {
	existing := []byte(`<?xpacket begin="" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
 <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
  <rdf:Description rdf:about="" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:pdfaid="http://www.aiim.org/pdfa/ns/id/" pdfaid:part="1">
   <dc:title><rdf:Alt><rdf:li xml:lang="x-default">Quarterly statement</rdf:li></rdf:Alt></dc:title>
  </rdf:Description>
 </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`)

	out, err := pdfa.Embed(pdfatest.New(pdfatest.WithMetadata(existing)), invoiceXML, en16931(t))
	require.NoError(t, err)

	info, err := pdfa.Metadata(out)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Contains(t, string(info.Raw), "Quarterly statement")
	assert.Equal(t, "3", info.Part)
	assert.NotContains(t, string(info.Raw), `pdfaid:part="1"`)
}

func TestEmbedTwiceKeepsDocumentID(t *testing.T) {
	p := en16931(t)

	first, err := pdfa.Embed(pdfatest.New(), invoiceXML, p)
	require.NoError(t, err)
	replacement := []byte(`<rsm:CrossIndustryInvoice xmlns:rsm="urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"><rsm:ExchangedDocument/></rsm:CrossIndustryInvoice>`)
	second, err := pdfa.Embed(first, replacement, p)
	require.NoError(t, err)

	files, err := pdfa.ListEmbeddedFiles(second)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, replacement, files[0].Data)

	a, err := pdfa.Metadata(first)
	require.NoError(t, err)
	b, err := pdfa.Metadata(second)
	require.NoError(t, err)
	assert.Equal(t, a.DocumentID, b.DocumentID)
	assert.NotEqual(t, a.InstanceID, b.InstanceID)
	assert.Equal(t, a.CreateDate, b.CreateDate)
	assert.Equal(t, 1, strings.Count(string(b.Raw), "Factur-X PDFA Extension Schema"))
}

func TestEmbedKeepsOtherAttachments(t *testing.T) {
	in := pdfatest.New(pdfatest.WithAttachment("notes.txt", []byte("hello")))

	before, err := pdfa.ListEmbeddedFiles(in)
	require.NoError(t, err)
	require.Len(t, before, 1)

	out, err := pdfa.Embed(in, invoiceXML, en16931(t))
	require.NoError(t, err)

	files, err := pdfa.ListEmbeddedFiles(out)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "factur-x.xml", files[0].Name)
	assert.Equal(t, "notes.txt", files[1].Name)
	assert.Equal(t, []byte("hello"), files[1].Data)
}

func TestEmbedOptions(t *testing.T) {
	out, err := pdfa.Embed(pdfatest.New(), invoiceXML, en16931(t),
		pdfa.WithRelationship(model.RelationshipData),
		pdfa.WithDescription("Facture électronique"),
		pdfa.WithProducer("facturx test"),
	)
	require.NoError(t, err)

	files, err := pdfa.ListEmbeddedFiles(out)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, model.RelationshipData, files[0].Relationship)
	assert.Equal(t, "Facture électronique", files[0].Description)

	info, err := pdfa.Metadata(out)
	require.NoError(t, err)
	assert.Contains(t, string(info.Raw), "<pdf:Producer>facturx test</pdf:Producer>")
}

func TestEmbedInfoMatchesXMP(t *testing.T) {
	created := time.Date(2020, 1, 2, 3, 4, 5, 0, time.FixedZone("", 3600))
	tests := []struct {
		name         string
		in           []byte
		opts         []pdfa.Option
		wantTitle    string
		wantProducer string
		wantCreated  time.Time
	}{
		{
			name:         "no info dictionary",
			in:           pdfatest.New(),
			opts:         []pdfa.Option{pdfa.WithProducer("facturx")},
			wantProducer: "facturx",
			wantCreated:  fixedClock(),
		},
		{
			name: "every descriptive entry",
			in: pdfatest.New(
				pdfatest.WithTitle("Invoice 42"),
				pdfatest.WithInfo("Author", "Acme Billing"),
				pdfatest.WithInfo("Subject", "March invoice"),
				pdfatest.WithInfo("Keywords", "invoice, factur-x"),
				pdfatest.WithInfo("Creator", "Report Writer"),
				pdfatest.WithInfo("CreationDate", "D:20200102030405+01'00'"),
			),
			opts:         []pdfa.Option{pdfa.WithProducer("facturx")},
			wantTitle:    "Invoice 42",
			wantProducer: "facturx",
			wantCreated:  created,
		},
		{
			name:         "source producer kept",
			in:           pdfatest.New(pdfatest.WithTitle("Invoice 42")),
			wantTitle:    "Invoice 42",
			wantProducer: "pdfatest",
			wantCreated:  fixedClock(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]pdfa.Option{pdfa.WithClock(fixedClock)}, tt.opts...)
			out, err := pdfa.Embed(tt.in, invoiceXML, en16931(t), opts...)
			require.NoError(t, err)

			doc, err := pdfa.ReadDocumentInfo(out)
			require.NoError(t, err)
			meta, err := pdfa.Metadata(out)
			require.NoError(t, err)
			require.NotNil(t, meta)

			assert.Equal(t, tt.wantTitle, doc.Title)
			assert.Equal(t, tt.wantProducer, doc.Producer)
			assert.NotContains(t, doc.Producer, "pdfcpu")

			assert.Equal(t, doc.Title, meta.Title)
			assert.Equal(t, doc.Author, meta.Author)
			assert.Equal(t, doc.Subject, meta.Subject)
			assert.Equal(t, doc.Keywords, meta.Keywords)
			assert.Equal(t, doc.Creator, meta.CreatorTool)
			assert.Equal(t, doc.Producer, meta.Producer)

			assert.True(t, fixedClock().Equal(doc.ModDate), "mod date %v", doc.ModDate)
			assert.Equal(t, "2024-03-01T12:30:00Z", meta.ModifyDate)

			assert.True(t, tt.wantCreated.Equal(doc.CreationDate), "creation date %v", doc.CreationDate)
			xmpCreated, err := time.Parse(time.RFC3339, meta.CreateDate)
			require.NoError(t, err)
			assert.True(t, doc.CreationDate.Equal(xmpCreated), "xmp %s, info %v", meta.CreateDate, doc.CreationDate)
		})
	}
}

func TestVersion(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"1.3", "1.7"},
		{"1.4", "1.7"},
		{"1.7", "1.7"},
	}

	p := en16931(t)
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			in := pdfatest.New(pdfatest.WithVersion(tt.header))
			got, err := pdfa.Version(in)
			require.NoError(t, err)
			assert.Equal(t, tt.header, got)

			out, err := pdfa.Embed(in, invoiceXML, p)
			require.NoError(t, err)
			got, err = pdfa.Version(out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListWithoutAttachments(t *testing.T) {
	files, err := pdfa.ListEmbeddedFiles(pdfatest.New())
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)

	info, err := pdfa.Metadata(pdfatest.New())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestEmbedConcurrently(t *testing.T) {
	p := en16931(t)
	in := pdfatest.New()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := pdfa.Embed(in, invoiceXML, p)
			if err == nil {
				_, err = pdfa.ListEmbeddedFiles(out)
			}
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

package pdfa

import (
	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/rezonia/facturx/internal/schema"
)

// XMP namespaces
const (
	nsMeta        = "adobe:ns:meta/"
	nsRDF         = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	nsPDFAID      = "http://www.aiim.org/pdfa/ns/id/"
	nsFacturX     = "urn:factur-x:pdfa:CrossIndustryDocument:invoice:1p0#"
	nsExtension   = "http://www.aiim.org/pdfa/ns/extension/"
	nsSchema      = "http://www.aiim.org/pdfa/ns/schema#"
	nsProperty    = "http://www.aiim.org/pdfa/ns/property#"
	nsXMP         = "http://ns.adobe.com/xap/1.0/"
	nsXMPMM       = "http://ns.adobe.com/xap/1.0/mm/"
	nsPDF         = "http://ns.adobe.com/pdf/1.3/"
	nsDC          = "http://purl.org/dc/elements/1.1/"
	xpacketID     = "W5M0MpCehiHzreSzNTczkc9d"
	xmpDateLayout = "2006-01-02T15:04:05Z07:00"
)

// XMPInfo is the PDF/A and Factur-X identification read back from a
// document's metadata stream.
type XMPInfo struct {
	Part             string `json:"part"`
	Conformance      string `json:"conformance"`
	DocumentType     string `json:"documentType,omitempty"`
	DocumentFileName string `json:"documentFileName,omitempty"`
	Version          string `json:"version,omitempty"`
	ConformanceLevel string `json:"conformanceLevel,omitempty"`
	DocumentID       string `json:"documentId,omitempty"`
	InstanceID       string `json:"instanceId,omitempty"`
	Title            string `json:"title,omitempty"`
	Author           string `json:"author,omitempty"`
	Subject          string `json:"subject,omitempty"`
	Keywords         string `json:"keywords,omitempty"`
	CreatorTool      string `json:"creatorTool,omitempty"`
	Producer         string `json:"producer,omitempty"`
	CreateDate       string `json:"createDate,omitempty"`
	ModifyDate       string `json:"modifyDate,omitempty"`
	Raw              []byte `json:"-"`
}

type property struct {
	ns, name string
}

var (
	propPart        = property{nsPDFAID, "part"}
	propConformance = property{nsPDFAID, "conformance"}
	propDocType     = property{nsFacturX, "DocumentType"}
	propFileName    = property{nsFacturX, "DocumentFileName"}
	propVersion     = property{nsFacturX, "Version"}
	propLevel       = property{nsFacturX, "ConformanceLevel"}
	propMetaDate    = property{nsXMP, "MetadataDate"}
	propModifyDate  = property{nsXMP, "ModifyDate"}
	propDocumentID  = property{nsXMPMM, "DocumentID"}
	propInstanceID  = property{nsXMPMM, "InstanceID"}
	propProducer    = property{nsPDF, "Producer"}
	propKeywords    = property{nsPDF, "Keywords"}
	propTrapped     = property{nsPDF, "Trapped"}
	propCreateDate  = property{nsXMP, "CreateDate"}
	propCreatorTool = property{nsXMP, "CreatorTool"}
	propTitle       = property{nsDC, "title"}
	propAuthor      = property{nsDC, "creator"}
	propSubject     = property{nsDC, "description"}
)

// extensionProperties describes the fx schema for PDF/A validators
var extensionProperties = []struct {
	name, description string
}{
	{"DocumentFileName", "The name of the embedded XML document"},
	{"DocumentType", "The type of the hybrid document in capital letters, e.g. INVOICE or ORDER"},
	{"Version", "The actual version of the standard applying to the embedded XML document"},
	{"ConformanceLevel", "The conformance level of the embedded XML document"},
}

type xmpFields struct {
	profile  *schema.Profile
	fileName string
	// info is the document information dictionary as it will be written;
	// each of its entries is mirrored into the packet.
	info DocumentInfo
}

// infoProperties pairs the text entries of info with their XMP property
func (f xmpFields) infoProperties() []struct {
	prop  property
	value string
} {
	return []struct {
		prop  property
		value string
	}{
		{propTitle, f.info.Title},
		{propAuthor, f.info.Author},
		{propSubject, f.info.Subject},
		{propKeywords, f.info.Keywords},
		{propCreatorTool, f.info.Creator},
		{propProducer, f.info.Producer},
		{propTrapped, f.info.Trapped},
	}
}

// mergeXMP returns existing metadata with the PDF/A-3b identification and
// the Factur-X properties set. Properties it does not own are kept as they
// are; unreadable metadata is replaced.
func mergeXMP(existing []byte, f xmpFields) ([]byte, error) {
	meta := parseXMP(existing)
	rdf := findNS(meta, nsRDF, "RDF")
	if rdf == nil {
		rdf = meta.CreateElement("rdf:RDF")
		rdf.CreateAttr("xmlns:rdf", nsRDF)
	}
	rdfPrefix := rdf.Space
	if rdfPrefix == "" {
		rdfPrefix = "rdf"
	}
	q := func(local string) string { return rdfPrefix + ":" + local }

	descriptions := childrenNS(rdf, nsRDF, "Description")
	documentID := lookup(descriptions, propDocumentID)
	if documentID == "" {
		documentID = "uuid:" + uuid.NewString()
	}

	owned := []property{
		propPart, propConformance, propDocType, propFileName, propVersion, propLevel,
		propMetaDate, propModifyDate, propCreateDate, propDocumentID, propInstanceID,
	}
	for _, p := range f.infoProperties() {
		if p.value != "" {
			owned = append(owned, p.prop)
		}
	}
	for _, d := range descriptions {
		removeProperties(d, owned)
		dropFacturXSchema(d)
	}

	desc := rdf.CreateElement(q("Description"))
	desc.CreateAttr(q("about"), "")
	desc.CreateAttr("xmlns:pdfaid", nsPDFAID)
	desc.CreateAttr("xmlns:fx", nsFacturX)
	desc.CreateAttr("xmlns:xmp", nsXMP)
	desc.CreateAttr("xmlns:xmpMM", nsXMPMM)
	desc.CreateAttr("xmlns:pdf", nsPDF)
	desc.CreateAttr("xmlns:dc", nsDC)

	stamp := f.info.ModDate.Format(xmpDateLayout)
	desc.CreateElement("pdfaid:part").SetText("3")
	desc.CreateElement("pdfaid:conformance").SetText("B")
	desc.CreateElement("xmp:CreateDate").SetText(f.info.CreationDate.Format(xmpDateLayout))
	desc.CreateElement("xmp:ModifyDate").SetText(stamp)
	desc.CreateElement("xmp:MetadataDate").SetText(stamp)
	desc.CreateElement("xmpMM:DocumentID").SetText(documentID)
	desc.CreateElement("xmpMM:InstanceID").SetText("uuid:" + uuid.NewString())
	writeInfoProperties(desc, f, q)
	desc.CreateElement("fx:DocumentType").SetText(f.profile.DocumentType)
	desc.CreateElement("fx:DocumentFileName").SetText(f.fileName)
	desc.CreateElement("fx:Version").SetText(f.profile.Version)
	desc.CreateElement("fx:ConformanceLevel").SetText(f.profile.ConformanceLevel)

	bag := existingSchemaBag(rdf)
	if bag == nil {
		desc.CreateAttr("xmlns:pdfaExtension", nsExtension)
		bag = desc.CreateElement("pdfaExtension:schemas").CreateElement(q("Bag"))
	}
	appendFacturXSchema(bag, q)

	doc := etree.NewDocument()
	doc.CreateProcInst("xpacket", `begin="`+"\uFEFF"+`" id="`+xpacketID+`"`)
	doc.AddChild(meta)
	doc.CreateProcInst("xpacket", `end="w"`)
	doc.Indent(1)
	return doc.WriteToBytes()
}

// writeInfoProperties adds the XMP counterpart of every Info entry. Title
// and Subject are language alternatives, Author an ordered list.
func writeInfoProperties(desc *etree.Element, f xmpFields, q func(string) string) {
	for _, p := range f.infoProperties() {
		if p.value == "" {
			continue
		}
		el := desc.CreateElement(prefixFor(p.prop.ns) + ":" + p.prop.name)
		switch p.prop {
		case propTitle, propSubject:
			li := el.CreateElement(q("Alt")).CreateElement(q("li"))
			li.CreateAttr("xml:lang", "x-default")
			li.SetText(p.value)
		case propAuthor:
			el.CreateElement(q("Seq")).CreateElement(q("li")).SetText(p.value)
		default:
			el.SetText(p.value)
		}
	}
}

func prefixFor(ns string) string {
	switch ns {
	case nsDC:
		return "dc"
	case nsXMP:
		return "xmp"
	default:
		return "pdf"
	}
}

// parseXMP returns the x:xmpmeta element of existing metadata, or a fresh
// one when there is none.
func parseXMP(existing []byte) *etree.Element {
	if len(existing) > 0 {
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(existing); err == nil {
			if meta := findNS(&doc.Element, nsMeta, "xmpmeta"); meta != nil {
				meta.Parent().RemoveChild(meta)
				return meta
			}
			if rdf := findNS(&doc.Element, nsRDF, "RDF"); rdf != nil {
				rdf.Parent().RemoveChild(rdf)
				meta := newMeta()
				meta.AddChild(rdf)
				return meta
			}
		}
	}
	return newMeta()
}

func newMeta() *etree.Element {
	meta := etree.NewElement("x:xmpmeta")
	meta.CreateAttr("xmlns:x", nsMeta)
	return meta
}

func existingSchemaBag(rdf *etree.Element) *etree.Element {
	for _, d := range childrenNS(rdf, nsRDF, "Description") {
		for _, s := range childrenNS(d, nsExtension, "schemas") {
			if bags := childrenNS(s, nsRDF, "Bag"); len(bags) > 0 {
				return bags[0]
			}
		}
	}
	return nil
}

func appendFacturXSchema(bag *etree.Element, q func(string) string) {
	li := bag.CreateElement(q("li"))
	li.CreateAttr(q("parseType"), "Resource")
	li.CreateAttr("xmlns:pdfaSchema", nsSchema)
	li.CreateAttr("xmlns:pdfaProperty", nsProperty)
	li.CreateElement("pdfaSchema:schema").SetText("Factur-X PDFA Extension Schema")
	li.CreateElement("pdfaSchema:namespaceURI").SetText(nsFacturX)
	li.CreateElement("pdfaSchema:prefix").SetText("fx")

	seq := li.CreateElement("pdfaSchema:property").CreateElement(q("Seq"))
	for _, p := range extensionProperties {
		item := seq.CreateElement(q("li"))
		item.CreateAttr(q("parseType"), "Resource")
		item.CreateElement("pdfaProperty:name").SetText(p.name)
		item.CreateElement("pdfaProperty:valueType").SetText("Text")
		item.CreateElement("pdfaProperty:category").SetText("external")
		item.CreateElement("pdfaProperty:description").SetText(p.description)
	}
}

// dropFacturXSchema removes an earlier fx extension schema description so
// repeated embedding does not duplicate it.
func dropFacturXSchema(desc *etree.Element) {
	for _, s := range childrenNS(desc, nsExtension, "schemas") {
		for _, bag := range childrenNS(s, nsRDF, "Bag") {
			for _, li := range childrenNS(bag, nsRDF, "li") {
				for _, uri := range descendantsNS(li, nsSchema, "namespaceURI") {
					if uri.Text() == nsFacturX {
						bag.RemoveChild(li)
						break
					}
				}
			}
		}
	}
}

func removeProperties(desc *etree.Element, props []property) {
	for _, p := range props {
		for _, el := range childrenNS(desc, p.ns, p.name) {
			desc.RemoveChild(el)
		}
		for i := len(desc.Attr) - 1; i >= 0; i-- {
			a := desc.Attr[i]
			if a.Key == p.name && a.NamespaceURI() == p.ns {
				desc.RemoveAttr(a.FullKey())
			}
		}
	}
}

// lookup returns the first value of a property given as element or
// attribute. For arrays and language alternatives it is the first item.
func lookup(descriptions []*etree.Element, p property) string {
	for _, d := range descriptions {
		for _, el := range childrenNS(d, p.ns, p.name) {
			if items := descendantsNS(el, nsRDF, "li"); len(items) > 0 {
				return items[0].Text()
			}
			return el.Text()
		}
		for _, a := range d.Attr {
			if a.Key == p.name && a.NamespaceURI() == p.ns {
				return a.Value
			}
		}
	}
	return ""
}

// readXMP extracts the identification properties from a metadata packet
func readXMP(raw []byte) (*XMPInfo, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, err
	}
	info := &XMPInfo{Raw: raw}
	rdf := findNS(&doc.Element, nsRDF, "RDF")
	if rdf == nil {
		return info, nil
	}
	descriptions := childrenNS(rdf, nsRDF, "Description")
	info.Part = lookup(descriptions, propPart)
	info.Conformance = lookup(descriptions, propConformance)
	info.DocumentType = lookup(descriptions, propDocType)
	info.DocumentFileName = lookup(descriptions, propFileName)
	info.Version = lookup(descriptions, propVersion)
	info.ConformanceLevel = lookup(descriptions, propLevel)
	info.DocumentID = lookup(descriptions, propDocumentID)
	info.InstanceID = lookup(descriptions, propInstanceID)
	info.Title = lookup(descriptions, propTitle)
	info.Author = lookup(descriptions, propAuthor)
	info.Subject = lookup(descriptions, propSubject)
	info.Keywords = lookup(descriptions, propKeywords)
	info.CreatorTool = lookup(descriptions, propCreatorTool)
	info.Producer = lookup(descriptions, propProducer)
	info.CreateDate = lookup(descriptions, propCreateDate)
	info.ModifyDate = lookup(descriptions, propModifyDate)
	return info, nil
}

func childrenNS(el *etree.Element, ns, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == ns {
			out = append(out, c)
		}
	}
	return out
}

func descendantsNS(el *etree.Element, ns, local string) []*etree.Element {
	var out []*etree.Element
	for _, c := range el.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == ns {
			out = append(out, c)
		}
		out = append(out, descendantsNS(c, ns, local)...)
	}
	return out
}

func findNS(el *etree.Element, ns, local string) *etree.Element {
	for _, c := range el.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == ns {
			return c
		}
		if found := findNS(c, ns, local); found != nil {
			return found
		}
	}
	return nil
}

package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	dec "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/validate"
)

const nsCII = "urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100"

// CII D16B structures (Factur-X 1.0, ZUGFeRD 2.x, XRechnung CII)
type ciiInvoice struct {
	XMLName     xml.Name       `xml:"urn:un:unece:uncefact:data:standard:CrossIndustryInvoice:100 CrossIndustryInvoice"`
	Context     ciiContext     `xml:"ExchangedDocumentContext"`
	Document    ciiDocument    `xml:"ExchangedDocument"`
	Transaction ciiTransaction `xml:"SupplyChainTradeTransaction"`
}

type ciiContext struct {
	BusinessProcess string `xml:"BusinessProcessSpecifiedDocumentContextParameter>ID"`
	Guideline       string `xml:"GuidelineSpecifiedDocumentContextParameter>ID"`
}

type ciiDocument struct {
	ID        string  `xml:"ID"`
	TypeCode  string  `xml:"TypeCode"`
	IssueDate ciiDate `xml:"IssueDateTime>DateTimeString"`
}

type ciiDate struct {
	Format string `xml:"format,attr"`
	Value  string `xml:",chardata"`
}

type ciiTransaction struct {
	Lines      []ciiLine     `xml:"IncludedSupplyChainTradeLineItem"`
	Agreement  ciiAgreement  `xml:"ApplicableHeaderTradeAgreement"`
	Settlement ciiSettlement `xml:"ApplicableHeaderTradeSettlement"`
}

type ciiLine struct {
	LineID string `xml:"AssociatedDocumentLineDocument>LineID"`
}

type ciiAgreement struct {
	Seller ciiParty `xml:"SellerTradeParty"`
	Buyer  ciiParty `xml:"BuyerTradeParty"`
}

type ciiParty struct {
	Name            string               `xml:"Name"`
	Country         string               `xml:"PostalTradeAddress>CountryID"`
	TaxRegistration []ciiTaxRegistration `xml:"SpecifiedTaxRegistration"`
}

type ciiTaxRegistration struct {
	ID ciiID `xml:"ID"`
}

type ciiID struct {
	SchemeID string `xml:"schemeID,attr"`
	Value    string `xml:",chardata"`
}

type ciiSettlement struct {
	Currency  string       `xml:"InvoiceCurrencyCode"`
	Summation ciiSummation `xml:"SpecifiedTradeSettlementHeaderMonetarySummation"`
}

type ciiSummation struct {
	TaxBasisTotal string      `xml:"TaxBasisTotalAmount"`
	TaxTotal      []ciiAmount `xml:"TaxTotalAmount"`
	GrandTotal    string      `xml:"GrandTotalAmount"`
	DuePayable    string      `xml:"DuePayableAmount"`
}

type ciiAmount struct {
	Currency string `xml:"currencyID,attr"`
	Value    string `xml:",chardata"`
}

// CIIAdapter reads Cross Industry Invoice documents
type CIIAdapter struct{}

// NewCIIAdapter creates a new CII adapter
func NewCIIAdapter() *CIIAdapter {
	return &CIIAdapter{}
}

// Syntax returns the vocabulary
func (a *CIIAdapter) Syntax() model.Syntax {
	return model.SyntaxCII
}

// CanParse checks for the CII root namespace
func (a *CIIAdapter) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte(nsCII)) &&
		bytes.Contains(content, []byte("CrossIndustryInvoice"))
}

// Parse reads a CII document into a Summary
func (a *CIIAdapter) Parse(ctx context.Context, r io.Reader) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SyntaxCII, "content", "failed to read content", err)
	}

	var inv ciiInvoice
	if err := xml.Unmarshal(content, &inv); err != nil {
		return nil, model.NewParseError(model.SyntaxCII, "xml", "failed to parse XML", err)
	}

	s := &Summary{
		Syntax:    model.SyntaxCII,
		Guideline: strings.TrimSpace(inv.Context.Guideline),
		Process:   strings.TrimSpace(inv.Context.BusinessProcess),
		Number:    strings.TrimSpace(inv.Document.ID),
		TypeCode:  strings.TrimSpace(inv.Document.TypeCode),
		Currency:  strings.TrimSpace(inv.Transaction.Settlement.Currency),
		Seller:    inv.Transaction.Agreement.Seller.party(),
		Buyer:     inv.Transaction.Agreement.Buyer.party(),
		LineCount: len(inv.Transaction.Lines),
	}
	if s.Guideline == "" {
		return nil, model.NewParseError(model.SyntaxCII, "guideline", "missing guideline identifier", nil)
	}
	if err := fillHeader(model.SyntaxCII, s, inv.Document.IssueDate, inv.Transaction.Settlement.Summation); err != nil {
		return nil, err
	}
	return s, nil
}

func (p ciiParty) party() Party {
	out := Party{
		Name:    strings.TrimSpace(p.Name),
		Country: strings.TrimSpace(p.Country),
	}
	for _, reg := range p.TaxRegistration {
		if reg.ID.SchemeID == "VA" {
			out.VATID = strings.TrimSpace(reg.ID.Value)
			break
		}
	}
	return out
}

// fillHeader converts the issue date and totals shared by both CII
// generations.
func fillHeader(syntax model.Syntax, s *Summary, issued ciiDate, sum ciiSummation) error {
	if v := strings.TrimSpace(issued.Value); v != "" {
		date, ok := validate.ParseDate(v)
		if !ok {
			return model.NewParseError(syntax, "issueDate", "invalid date "+v, nil)
		}
		s.IssueDate = date
	}

	amounts := []struct {
		field string
		raw   string
		dst   *decimal.Decimal
	}{
		{"taxBasisTotal", sum.TaxBasisTotal, &s.TaxBasisTotal},
		{"grandTotal", sum.GrandTotal, &s.GrandTotal},
		{"duePayable", sum.DuePayable, &s.DuePayable},
	}
	for _, a := range amounts {
		d, err := parseAmount(a.raw)
		if err != nil {
			return model.NewParseError(syntax, a.field, "invalid amount", err)
		}
		*a.dst = d
	}

	// With a separate tax currency there are two totals; prefer the one in
	// the invoice currency.
	if len(sum.TaxTotal) > 0 {
		chosen := sum.TaxTotal[0]
		for _, t := range sum.TaxTotal {
			if t.Currency == "" || t.Currency == s.Currency {
				chosen = t
				break
			}
		}
		d, err := parseAmount(chosen.Value)
		if err != nil {
			return model.NewParseError(syntax, "taxTotal", "invalid amount", err)
		}
		s.TaxTotal = d
	}
	return nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return dec.FromString(raw)
}

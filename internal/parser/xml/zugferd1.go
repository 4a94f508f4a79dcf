package xml

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rezonia/facturx/internal/model"
)

const nsZUGFeRD1 = "urn:ferd:CrossIndustryDocument:invoice:1p0"

// ZUGFeRD 1.0 structures (CII D13B with header-level names)
type zfInvoice struct {
	XMLName     xml.Name      `xml:"urn:ferd:CrossIndustryDocument:invoice:1p0 CrossIndustryDocument"`
	Context     ciiContext    `xml:"SpecifiedExchangedDocumentContext"`
	Document    ciiDocument   `xml:"HeaderExchangedDocument"`
	Transaction zfTransaction `xml:"SpecifiedSupplyChainTradeTransaction"`
}

type zfTransaction struct {
	Agreement  ciiAgreement `xml:"ApplicableSupplyChainTradeAgreement"`
	Settlement struct {
		Currency  string       `xml:"InvoiceCurrencyCode"`
		Summation ciiSummation `xml:"SpecifiedTradeSettlementMonetarySummation"`
	} `xml:"ApplicableSupplyChainTradeSettlement"`
	Lines []ciiLine `xml:"IncludedSupplyChainTradeLineItem"`
}

// ZUGFeRD1Adapter reads ZUGFeRD 1.0 CrossIndustryDocument invoices
type ZUGFeRD1Adapter struct{}

// NewZUGFeRD1Adapter creates a new ZUGFeRD 1.0 adapter
func NewZUGFeRD1Adapter() *ZUGFeRD1Adapter {
	return &ZUGFeRD1Adapter{}
}

// Syntax returns the vocabulary
func (a *ZUGFeRD1Adapter) Syntax() model.Syntax {
	return model.SyntaxZUGFeRD1
}

// CanParse checks for the ZUGFeRD 1.0 root namespace
func (a *ZUGFeRD1Adapter) CanParse(content []byte) bool {
	return bytes.Contains(content, []byte(nsZUGFeRD1)) &&
		bytes.Contains(content, []byte("CrossIndustryDocument"))
}

// Parse reads a ZUGFeRD 1.0 document into a Summary
func (a *ZUGFeRD1Adapter) Parse(ctx context.Context, r io.Reader) (*Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewParseError(model.SyntaxZUGFeRD1, "content", "failed to read content", err)
	}

	var inv zfInvoice
	if err := xml.Unmarshal(content, &inv); err != nil {
		return nil, model.NewParseError(model.SyntaxZUGFeRD1, "xml", "failed to parse XML", err)
	}

	s := &Summary{
		Syntax:    model.SyntaxZUGFeRD1,
		Guideline: strings.TrimSpace(inv.Context.Guideline),
		Number:    strings.TrimSpace(inv.Document.ID),
		TypeCode:  strings.TrimSpace(inv.Document.TypeCode),
		Currency:  strings.TrimSpace(inv.Transaction.Settlement.Currency),
		Seller:    inv.Transaction.Agreement.Seller.party(),
		Buyer:     inv.Transaction.Agreement.Buyer.party(),
		LineCount: len(inv.Transaction.Lines),
	}
	if s.Guideline == "" {
		return nil, model.NewParseError(model.SyntaxZUGFeRD1, "guideline", "missing guideline identifier", nil)
	}
	if err := fillHeader(model.SyntaxZUGFeRD1, s, inv.Document.IssueDate, inv.Transaction.Settlement.Summation); err != nil {
		return nil, err
	}
	return s, nil
}

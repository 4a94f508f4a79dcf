package profile

import (
	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/schema"
	"github.com/rezonia/facturx/internal/validate"
)

// level orders the profiles; each one carries every field of the levels
// below it.
type level int

const (
	minimum level = iota
	basicWL
	basic
	en16931
	extended
)

// builder declares the CII field tree for one level. Field declaration
// order is CII element order.
type builder struct {
	level     level
	guideline string
}

// from keeps entries only for profiles at or above l
func (b builder) from(l level, entries ...schema.Entry) []schema.Entry {
	if b.level < l {
		return nil
	}
	return entries
}

func all(entries ...schema.Entry) []schema.Entry { return entries }

func flatten(parts [][]schema.Entry) []schema.Entry {
	var out []schema.Entry
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func object(path string, parts ...[]schema.Entry) *schema.Node {
	return schema.Object(path, flatten(parts)...)
}

func array(path string, parts ...[]schema.Entry) *schema.Node {
	return schema.Array(path, flatten(parts)...)
}

func text(path string) *schema.Node { return schema.String(path).Optional() }

func amount(path string) *schema.Node {
	return schema.Number(path).Transform(decimal.Fixed(2))
}

func date(path string) *schema.Node {
	return schema.Date(path+"/udt:DateTimeString").
		Transform(validate.FormatDate).
		XML("@format", "102")
}

func indicator(value string) schema.Entry {
	return schema.Fixed("ram:ChargeIndicator/udt:Indicator", value)
}

func vat() schema.Entry {
	return schema.Fixed("ram:TypeCode", "VAT")
}

// invoice is the document root
func (b builder) invoice() *schema.Node {
	return object(".",
		b.from(extended,
			schema.Field("testIndicator", schema.Boolean("rsm:ExchangedDocumentContext/ram:TestIndicator/udt:Indicator").Optional()),
		),
		all(
			schema.Field("businessProcessType", text("rsm:ExchangedDocumentContext/ram:BusinessProcessSpecifiedDocumentContextParameter/ram:ID")),
			schema.Field("specificationIdentifier", schema.String("rsm:ExchangedDocumentContext/ram:GuidelineSpecifiedDocumentContextParameter/ram:ID").Default(b.guideline)),
			schema.Field("number", schema.String("rsm:ExchangedDocument/ram:ID")),
		),
		b.from(extended,
			schema.Field("name", text("rsm:ExchangedDocument/ram:Name")),
		),
		all(
			schema.Field("typeCode", schema.Enum(codelist.DocumentType, "rsm:ExchangedDocument/ram:TypeCode").Default("380")),
			schema.Field("issueDate", date("rsm:ExchangedDocument/ram:IssueDateTime")),
		),
		b.from(extended,
			schema.Field("languageId", text("rsm:ExchangedDocument/ram:LanguageID")),
		),
		b.from(basicWL,
			schema.Field("includedNote", array("rsm:ExchangedDocument/ram:IncludedNote",
				all(
					schema.Field("content", schema.String("ram:Content")),
					schema.Field("subjectCode", schema.Enum(codelist.TextSubject, "ram:SubjectCode").Optional()),
				),
			).Optional()),
		),
		all(
			schema.Field("transaction", b.transaction()),
		),
	)
}

func (b builder) transaction() *schema.Node {
	return object("rsm:SupplyChainTradeTransaction",
		b.from(basic,
			schema.Field("line", b.line().MinItems(1)),
		),
		all(
			schema.Field("tradeAgreement", b.headerAgreement()),
			// CII requires the delivery element even when it has no content
			schema.Fixed("ram:ApplicableHeaderTradeDelivery", ""),
		),
		b.from(basicWL,
			schema.Field("tradeDelivery", b.headerDelivery().Optional()),
		),
		all(
			schema.Field("tradeSettlement", b.headerSettlement()),
		),
	)
}

func (b builder) line() *schema.Node {
	return array("ram:IncludedSupplyChainTradeLineItem",
		all(
			schema.Field("lineId", schema.String("ram:AssociatedDocumentLineDocument/ram:LineID")),
			schema.Field("note", text("ram:AssociatedDocumentLineDocument/ram:IncludedNote/ram:Content")),
			schema.Field("tradeProduct", b.product()),
			schema.Field("tradeAgreement", b.lineAgreement()),
			schema.Field("tradeDelivery", object("ram:SpecifiedLineTradeDelivery",
				all(schema.Field("billedQuantity", quantity("ram:BilledQuantity"))),
			)),
			schema.Field("tradeSettlement", b.lineSettlement()),
		),
	)
}

func (b builder) product() *schema.Node {
	return object("ram:SpecifiedTradeProduct",
		all(
			schema.Field("globalId", schemed("ram:GlobalID", codelist.Identifier).Optional()),
		),
		b.from(en16931,
			schema.Field("sellerAssignedId", text("ram:SellerAssignedID")),
			schema.Field("buyerAssignedId", text("ram:BuyerAssignedID")),
		),
		b.from(extended,
			schema.Field("industryAssignedId", text("ram:IndustryAssignedID")),
		),
		all(
			schema.Field("name", schema.String("ram:Name")),
		),
		b.from(en16931,
			schema.Field("description", text("ram:Description")),
			schema.Field("characteristic", array("ram:ApplicableProductCharacteristic",
				all(
					schema.Field("description", schema.String("ram:Description")),
					schema.Field("value", schema.String("ram:Value")),
				),
			).Optional()),
			schema.Field("classification", array("ram:DesignatedProductClassification",
				all(
					schema.Field("classCode", schema.String("ram:ClassCode")),
					schema.Field("listId", schema.Enum(codelist.ItemType, "ram:ClassCode/@listID")),
					schema.Field("listVersionId", text("ram:ClassCode/@listVersionID")),
				),
			).Optional()),
			schema.Field("originCountry", schema.Enum(codelist.Country, "ram:OriginTradeCountry/ram:ID").Optional()),
		),
	)
}

func (b builder) lineAgreement() *schema.Node {
	return object("ram:SpecifiedLineTradeAgreement",
		b.from(en16931,
			schema.Field("buyerOrderLineId", text("ram:BuyerOrderReferencedDocument/ram:LineID")),
		),
		all(
			schema.Field("grossTradePrice", object("ram:GrossPriceProductTradePrice",
				all(
					schema.Field("chargeAmount", schema.Number("ram:ChargeAmount")),
					schema.Field("basisQuantity", quantity("ram:BasisQuantity").Optional()),
					schema.Field("allowance", object("ram:AppliedTradeAllowanceCharge",
						all(
							indicator("false"),
							schema.Field("actualAmount", schema.Number("ram:ActualAmount")),
						),
					).Optional()),
				),
			).Optional()),
			schema.Field("netTradePrice", object("ram:NetPriceProductTradePrice",
				all(
					schema.Field("chargeAmount", schema.Number("ram:ChargeAmount")),
					schema.Field("basisQuantity", quantity("ram:BasisQuantity").Optional()),
				),
			)),
		),
	)
}

func (b builder) lineSettlement() *schema.Node {
	return object("ram:SpecifiedLineTradeSettlement",
		all(
			schema.Field("tradeTax", object("ram:ApplicableTradeTax",
				all(
					vat(),
					schema.Field("categoryCode", schema.Enum(codelist.VATCategory, "ram:CategoryCode")),
					schema.Field("rateApplicablePercent", schema.Number("ram:RateApplicablePercent").Optional()),
				),
			)),
		),
		b.from(en16931,
			schema.Field("billingPeriod", b.period("ram:BillingSpecifiedPeriod").Optional()),
		),
		all(
			schema.Field("allowanceCharge", b.allowanceCharges(false).Optional()),
			schema.Field("lineTotalAmount", amount("ram:SpecifiedTradeSettlementLineMonetarySummation/ram:LineTotalAmount")),
		),
		b.from(en16931,
			schema.Field("accountingAccount", text("ram:ReceivableSpecifiedTradeAccountingAccount/ram:ID")),
		),
	)
}

func (b builder) headerAgreement() *schema.Node {
	return object("ram:ApplicableHeaderTradeAgreement",
		all(
			schema.Field("buyerReference", text("ram:BuyerReference")),
			schema.Field("seller", b.seller()),
			schema.Field("buyer", b.buyer()),
		),
		b.from(basicWL,
			schema.Field("sellerTaxRepresentative", b.taxRepresentative().Optional()),
		),
		b.from(extended,
			schema.Field("deliveryTerms", schema.Enum(codelist.DeliveryTerms, "ram:ApplicableTradeDeliveryTerms/ram:DeliveryTypeCode").Optional()),
		),
		b.from(en16931,
			schema.Field("sellerOrderReference", text("ram:SellerOrderReferencedDocument/ram:IssuerAssignedID")),
		),
		all(
			schema.Field("buyerOrderReference", text("ram:BuyerOrderReferencedDocument/ram:IssuerAssignedID")),
		),
		b.from(basicWL,
			schema.Field("contractReference", text("ram:ContractReferencedDocument/ram:IssuerAssignedID")),
		),
		b.from(en16931,
			schema.Field("additionalReference", array("ram:AdditionalReferencedDocument",
				all(
					schema.Field("issuerAssignedId", schema.String("ram:IssuerAssignedID")),
					schema.Field("uri", text("ram:URIID")),
					schema.Field("typeCode", schema.String("ram:TypeCode")),
					schema.Field("name", text("ram:Name")),
					schema.Field("referenceTypeCode", schema.Enum(codelist.ReferenceType, "ram:ReferenceTypeCode").Optional()),
				),
			).Optional()),
			schema.Field("project", object("ram:SpecifiedProcuringProject",
				all(
					schema.Field("id", schema.String("ram:ID")),
					schema.Field("name", schema.String("ram:Name")),
				),
			).Optional()),
		),
	)
}

// headerDelivery fills the pinned delivery element when delivery data is
// present.
func (b builder) headerDelivery() *schema.Node {
	return object("ram:ApplicableHeaderTradeDelivery",
		all(
			schema.Field("shipTo", b.shipTo().Optional()),
			schema.Field("deliveryDate", date("ram:ActualDeliverySupplyChainEvent/ram:OccurrenceDateTime").Optional()),
			schema.Field("despatchAdvice", text("ram:DespatchAdviceReferencedDocument/ram:IssuerAssignedID")),
		),
		b.from(en16931,
			schema.Field("receivingAdvice", text("ram:ReceivingAdviceReferencedDocument/ram:IssuerAssignedID")),
		),
		b.from(extended,
			schema.Field("deliveryNote", text("ram:DeliveryNoteReferencedDocument/ram:IssuerAssignedID")),
		),
	)
}

func (b builder) headerSettlement() *schema.Node {
	return object("ram:ApplicableHeaderTradeSettlement",
		b.from(basicWL,
			schema.Field("creditorReferenceId", text("ram:CreditorReferenceID")),
			schema.Field("paymentReference", text("ram:PaymentReference")),
			schema.Field("taxCurrency", schema.Enum(codelist.Currency, "ram:TaxCurrencyCode").Optional()),
		),
		all(
			schema.Field("currency", schema.Enum(codelist.Currency, "ram:InvoiceCurrencyCode")),
		),
		b.from(extended,
			schema.Field("invoiceIssuerReference", text("ram:InvoiceIssuerReference")),
		),
		b.from(basicWL,
			schema.Field("payee", b.payee().Optional()),
			schema.Field("paymentMeans", b.paymentMeans().Optional()),
			schema.Field("tradeTax", b.headerTax().MinItems(1)),
			schema.Field("billingPeriod", b.period("ram:BillingSpecifiedPeriod").Optional()),
			schema.Field("allowanceCharge", b.allowanceCharges(true).Optional()),
			schema.Field("paymentTerms", object("ram:SpecifiedTradePaymentTerms",
				all(
					schema.Field("description", text("ram:Description")),
					schema.Field("dueDate", date("ram:DueDateDateTime").Optional()),
					schema.Field("directDebitMandateId", text("ram:DirectDebitMandateID")),
				),
			).Optional()),
		),
		all(
			schema.Field("monetarySummation", b.summation()),
		),
		b.from(basicWL,
			schema.Field("invoiceReferencedDocument", array("ram:InvoiceReferencedDocument",
				all(
					schema.Field("issuerAssignedId", schema.String("ram:IssuerAssignedID")),
					schema.Field("issueDate", schema.Date("ram:FormattedIssueDateTime/qdt:DateTimeString").
						Optional().
						Transform(validate.FormatDate).
						XML("@format", "102")),
				),
			).Optional()),
			schema.Field("accountingAccount", text("ram:ReceivableSpecifiedTradeAccountingAccount/ram:ID")),
		),
	)
}

func (b builder) paymentMeans() *schema.Node {
	return array("ram:SpecifiedTradeSettlementPaymentMeans",
		all(
			schema.Field("typeCode", schema.Enum(codelist.PaymentMeans, "ram:TypeCode")),
		),
		b.from(en16931,
			schema.Field("information", text("ram:Information")),
			schema.Field("card", object("ram:ApplicableTradeSettlementFinancialCard",
				all(
					schema.Field("id", schema.String("ram:ID")),
					schema.Field("holderName", text("ram:CardholderName")),
				),
			).Optional()),
		),
		all(
			schema.Field("payerIban", text("ram:PayerPartyDebtorFinancialAccount/ram:IBANID")),
			schema.Field("payeeAccount", object("ram:PayeePartyCreditorFinancialAccount",
				all(schema.Field("iban", text("ram:IBANID"))),
				b.from(en16931, schema.Field("accountName", text("ram:AccountName"))),
				all(schema.Field("proprietaryId", text("ram:ProprietaryID"))),
			).Optional()),
		),
		b.from(en16931,
			schema.Field("payeeBic", text("ram:PayeeSpecifiedCreditorFinancialInstitution/ram:BICID")),
		),
	)
}

func (b builder) headerTax() *schema.Node {
	return array("ram:ApplicableTradeTax",
		all(
			schema.Field("calculatedAmount", amount("ram:CalculatedAmount")),
			vat(),
			schema.Field("exemptionReason", text("ram:ExemptionReason")),
			schema.Field("basisAmount", amount("ram:BasisAmount")),
			schema.Field("categoryCode", schema.Enum(codelist.VATCategory, "ram:CategoryCode")),
			schema.Field("exemptionReasonCode", schema.Enum(codelist.VATExemption, "ram:ExemptionReasonCode").Optional()),
			schema.Field("dueDateTypeCode", schema.Enum(codelist.DateFunction, "ram:DueDateTypeCode").Optional()),
			schema.Field("rateApplicablePercent", schema.Number("ram:RateApplicablePercent").Optional()),
		),
	)
}

// allowanceCharges merges allowances and charges into one sequence of
// SpecifiedTradeAllowanceCharge elements, allowances first.
func (b builder) allowanceCharges(header bool) *schema.Node {
	member := func(charge bool) *schema.Node {
		flag, reasons := "false", codelist.AllowanceReason
		if charge {
			flag, reasons = "true", codelist.ChargeReason
		}
		return array("ram:SpecifiedTradeAllowanceCharge",
			all(
				indicator(flag),
				schema.Field("calculationPercent", schema.Number("ram:CalculationPercent").Optional()),
				schema.Field("basisAmount", amount("ram:BasisAmount").Optional()),
				schema.Field("actualAmount", amount("ram:ActualAmount")),
				schema.Field("reasonCode", schema.Enum(reasons, "ram:ReasonCode").Optional()),
				schema.Field("reason", text("ram:Reason")),
			),
			headerOnly(header,
				schema.Field("categoryTradeTax", object("ram:CategoryTradeTax",
					all(
						vat(),
						schema.Field("categoryCode", schema.Enum(codelist.VATCategory, "ram:CategoryCode")),
						schema.Field("rateApplicablePercent", schema.Number("ram:RateApplicablePercent").Optional()),
					),
				)),
			),
		)
	}

	return object(".",
		all(
			schema.Field("allowances", member(false).Optional().InGroup("allowanceCharge")),
			schema.Field("charges", member(true).Optional().InGroup("allowanceCharge").After("allowances")),
		),
	)
}

func headerOnly(header bool, entries ...schema.Entry) []schema.Entry {
	if !header {
		return nil
	}
	return entries
}

func (b builder) summation() *schema.Node {
	return object("ram:SpecifiedTradeSettlementHeaderMonetarySummation",
		b.from(basicWL,
			schema.Field("lineTotalAmount", amount("ram:LineTotalAmount")),
			schema.Field("chargeTotalAmount", amount("ram:ChargeTotalAmount").Optional()),
			schema.Field("allowanceTotalAmount", amount("ram:AllowanceTotalAmount").Optional()),
		),
		all(
			schema.Field("taxBasisTotalAmount", amount("ram:TaxBasisTotalAmount")),
			schema.Field("taxTotal", array("ram:TaxTotalAmount",
				all(
					schema.Field("amount", amount(".")),
					schema.Field("currency", schema.Enum(codelist.Currency, "@currencyID")),
				),
			).Optional()),
		),
		b.from(en16931,
			schema.Field("roundingAmount", amount("ram:RoundingAmount").Optional()),
		),
		all(
			schema.Field("grandTotalAmount", amount("ram:GrandTotalAmount")),
		),
		b.from(basicWL,
			schema.Field("totalPrepaidAmount", amount("ram:TotalPrepaidAmount").Optional()),
		),
		all(
			schema.Field("duePayableAmount", amount("ram:DuePayableAmount")),
		),
	)
}

func (b builder) period(path string) *schema.Node {
	return object(path,
		all(
			schema.Field("startDate", date("ram:StartDateTime").Optional()),
			schema.Field("endDate", date("ram:EndDateTime").Optional()),
		),
	)
}

func quantity(path string) *schema.Node {
	return object(path,
		all(
			schema.Field("amount", schema.Number(".")),
			schema.Field("unitCode", schema.Enum(codelist.UnitOfMeasure, "@unitCode")),
		),
	)
}

func schemed(path, codeSet string) *schema.Node {
	return object(path,
		all(
			schema.Field("value", schema.String(".")),
			schema.Field("schemeId", schema.Enum(codeSet, "@schemeID")),
		),
	)
}

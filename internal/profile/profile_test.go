package profile_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/profile"
	"github.com/rezonia/facturx/internal/projection"
	"github.com/rezonia/facturx/internal/schema"
	"github.com/rezonia/facturx/internal/validate"
	"github.com/rezonia/facturx/internal/xmlout"
)

func loadSample(t *testing.T, name string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "..", "samples", name))
	require.NoError(t, err)

	var data map[string]any
	require.NoError(t, yaml.Unmarshal(raw, &data))
	return data
}

func registry(t *testing.T) *profile.Registry {
	t.Helper()
	r, err := profile.Default()
	require.NoError(t, err)
	return r
}

func compile(t *testing.T, id string, data map[string]any) *etree.Element {
	t.Helper()
	p, err := registry(t).Get(id)
	require.NoError(t, err)

	tree, err := validate.Validate(p, data)
	require.NoError(t, err)
	out, err := projection.Project(p, tree)
	require.NoError(t, err)
	return out.Root()
}

func childTags(el *etree.Element) []string {
	var tags []string
	for _, c := range el.ChildElements() {
		tags = append(tags, c.Tag)
	}
	return tags
}

func TestDefinitions_Compile(t *testing.T) {
	codes, err := codelist.Default()
	require.NoError(t, err)

	prev := 0
	for _, def := range profile.Definitions() {
		p, err := schema.Compile(def, codes)
		require.NoError(t, err, "profile %s", def.ID)
		assert.Greater(t, p.Leaves(), prev, "%s must extend the previous profile", p.ID)
		assert.Equal(t, profile.AttachmentFileName, p.AttachmentFileName)
		assert.Equal(t, "rsm:CrossIndustryInvoice", p.RootElement)
		prev = p.Leaves()
	}
}

func TestRegistry_List(t *testing.T) {
	var ids, levels []string
	for _, p := range registry(t).List() {
		ids = append(ids, p.ID)
		levels = append(levels, p.ConformanceLevel)
	}
	assert.Equal(t, []string{"minimum", "basicwl", "basic", "en16931", "extended"}, ids)
	assert.Equal(t, []string{"MINIMUM", "BASIC WL", "BASIC", "EN 16931", "EXTENDED"}, levels)
}

func TestRegistry_Get(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"minimum", profile.Minimum},
		{"BASIC WL", profile.BasicWL},
		{"basic-wl", profile.BasicWL},
		{"Basic", profile.Basic},
		{"EN 16931", profile.EN16931},
		{"comfort", profile.EN16931},
		{"Extended", profile.Extended},
	}

	r := registry(t)
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := r.Get(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, err := r.Get("xrechnung")
	require.Error(t, err)
	assert.True(t, errors.Is(err, profile.ErrUnknownProfile))
}

func TestRegistry_Detect(t *testing.T) {
	tests := []struct {
		guideline string
		want      string
	}{
		{"urn:factur-x.eu:1p0:minimum", profile.Minimum},
		{"urn:factur-x.eu:1p0:basicwl", profile.BasicWL},
		{"urn:cen.eu:en16931:2017#compliant#urn:factur-x.eu:1p0:basic", profile.Basic},
		{"urn:cen.eu:en16931:2017", profile.EN16931},
		{"urn:cen.eu:en16931:2017#conformant#urn:factur-x.eu:1p0:extended", profile.Extended},
		{"urn:cen.eu:en16931:2017#compliant#urn:zugferd.de:2p0:basic", profile.Basic},
		{"urn:zugferd.de:2p0:minimum", profile.Minimum},
		{"urn:ferd:CrossIndustryDocument:invoice:1p0:comfort", profile.EN16931},
		{"urn:cen.eu:en16931:2017#compliant#urn:xeinkauf.de:kosit:xrechnung_3.0", profile.EN16931},
	}

	r := registry(t)
	for _, tt := range tests {
		t.Run(tt.guideline, func(t *testing.T) {
			p, err := r.Detect(tt.guideline)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.ID)
		})
	}

	_, err := r.Detect("urn:example:unknown")
	assert.True(t, errors.Is(err, profile.ErrUnknownProfile))
}

func TestRegistry_RegisterCustom(t *testing.T) {
	codes, err := codelist.Default()
	require.NoError(t, err)
	r, err := profile.New(codes)
	require.NoError(t, err)

	custom := profile.Definitions()[0]
	custom.ID = "minimum-internal"
	require.NoError(t, r.Register(custom, codes))

	p, err := r.Get("minimum-internal")
	require.NoError(t, err)
	assert.Len(t, r.List(), 6)
	assert.Equal(t, "urn:factur-x.eu:1p0:minimum", p.SpecificationID)
}

func TestMinimum_Completeness(t *testing.T) {
	p, err := registry(t).Get(profile.Minimum)
	require.NoError(t, err)

	_, err = validate.Validate(p, map[string]any{})
	list, ok := model.AsValidationErrors(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"number", "issueDate", "transaction"}, list.Paths())
}

func TestMinimum_Document(t *testing.T) {
	root := compile(t, profile.Minimum, loadSample(t, "minimum.json"))

	assert.Equal(t, []string{"ExchangedDocumentContext", "ExchangedDocument", "SupplyChainTradeTransaction"}, childTags(root))
	assert.Equal(t, "urn:factur-x.eu:1p0:minimum",
		root.FindElement("./ExchangedDocumentContext/GuidelineSpecifiedDocumentContextParameter/ID").Text())
	assert.Equal(t, "380", root.FindElement("./ExchangedDocument/TypeCode").Text())

	tx := root.SelectElement("SupplyChainTradeTransaction")
	require.NotNil(t, tx)
	assert.Equal(t, []string{"ApplicableHeaderTradeAgreement", "ApplicableHeaderTradeDelivery", "ApplicableHeaderTradeSettlement"}, childTags(tx))
	assert.Empty(t, tx.SelectElement("ApplicableHeaderTradeDelivery").ChildElements())

	sum := tx.FindElement("./ApplicableHeaderTradeSettlement/SpecifiedTradeSettlementHeaderMonetarySummation")
	require.NotNil(t, sum)
	assert.Equal(t, []string{"TaxBasisTotalAmount", "TaxTotalAmount", "GrandTotalAmount", "DuePayableAmount"}, childTags(sum))
	assert.Equal(t, "100.00", sum.SelectElement("TaxBasisTotalAmount").Text())
	assert.Equal(t, "19.00", sum.SelectElement("TaxTotalAmount").Text())
	assert.Equal(t, "EUR", sum.SelectElement("TaxTotalAmount").SelectAttrValue("currencyID", ""))
}

func TestEN16931_Document(t *testing.T) {
	root := compile(t, profile.EN16931, loadSample(t, "en16931.yaml"))

	issue := root.FindElement("./ExchangedDocument/IssueDateTime/DateTimeString")
	require.NotNil(t, issue)
	assert.Equal(t, "20240305", issue.Text())
	assert.Equal(t, "102", issue.SelectAttrValue("format", ""))

	tx := root.SelectElement("SupplyChainTradeTransaction")
	require.NotNil(t, tx)
	assert.Equal(t, []string{
		"IncludedSupplyChainTradeLineItem",
		"IncludedSupplyChainTradeLineItem",
		"ApplicableHeaderTradeAgreement",
		"ApplicableHeaderTradeDelivery",
		"ApplicableHeaderTradeSettlement",
	}, childTags(tx))

	line := tx.SelectElement("IncludedSupplyChainTradeLineItem")
	assert.Equal(t, []string{
		"AssociatedDocumentLineDocument",
		"SpecifiedTradeProduct",
		"SpecifiedLineTradeAgreement",
		"SpecifiedLineTradeDelivery",
		"SpecifiedLineTradeSettlement",
	}, childTags(line))
	assert.Equal(t, []string{"TypeCode", "CategoryCode", "RateApplicablePercent"},
		childTags(line.FindElement("./SpecifiedLineTradeSettlement/ApplicableTradeTax")))
	assert.Equal(t, "HUR", line.FindElement("./SpecifiedLineTradeDelivery/BilledQuantity").SelectAttrValue("unitCode", ""))
	assert.Equal(t, "1000.00", line.FindElement("./SpecifiedLineTradeSettlement/SpecifiedTradeSettlementLineMonetarySummation/LineTotalAmount").Text())

	delivery := tx.FindElement("./ApplicableHeaderTradeDelivery/ActualDeliverySupplyChainEvent/OccurrenceDateTime/DateTimeString")
	require.NotNil(t, delivery)
	assert.Equal(t, "20240301", delivery.Text())
}

func TestEN16931_SellerParty(t *testing.T) {
	root := compile(t, profile.EN16931, loadSample(t, "en16931.yaml"))

	seller := root.FindElement("./SupplyChainTradeTransaction/ApplicableHeaderTradeAgreement/SellerTradeParty")
	require.NotNil(t, seller)
	assert.Equal(t, []string{
		"Name",
		"SpecifiedLegalOrganization",
		"DefinedTradeContact",
		"PostalTradeAddress",
		"URIUniversalCommunication",
		"SpecifiedTaxRegistration",
		"SpecifiedTaxRegistration",
	}, childTags(seller))
	assert.Equal(t, []string{"PostcodeCode", "LineOne", "CityName", "CountryID"}, childTags(seller.SelectElement("PostalTradeAddress")))

	regs := seller.SelectElements("SpecifiedTaxRegistration")
	require.Len(t, regs, 2)
	assert.Equal(t, "VA", regs[0].SelectElement("ID").SelectAttrValue("schemeID", ""))
	assert.Equal(t, "DE123456789", regs[0].SelectElement("ID").Text())
	assert.Equal(t, "FC", regs[1].SelectElement("ID").SelectAttrValue("schemeID", ""))
}

func TestEN16931_Settlement(t *testing.T) {
	root := compile(t, profile.EN16931, loadSample(t, "en16931.yaml"))

	settlement := root.FindElement("./SupplyChainTradeTransaction/ApplicableHeaderTradeSettlement")
	require.NotNil(t, settlement)
	assert.Equal(t, []string{
		"PaymentReference",
		"InvoiceCurrencyCode",
		"SpecifiedTradeSettlementPaymentMeans",
		"ApplicableTradeTax",
		"SpecifiedTradeAllowanceCharge",
		"SpecifiedTradeAllowanceCharge",
		"SpecifiedTradeAllowanceCharge",
		"SpecifiedTradePaymentTerms",
		"SpecifiedTradeSettlementHeaderMonetarySummation",
	}, childTags(settlement))

	var flags, amounts []string
	for _, ac := range settlement.SelectElements("SpecifiedTradeAllowanceCharge") {
		flags = append(flags, ac.FindElement("./ChargeIndicator/Indicator").Text())
		amounts = append(amounts, ac.SelectElement("ActualAmount").Text())
	}
	assert.Equal(t, []string{"false", "true", "true"}, flags)
	assert.Equal(t, []string{"50.00", "10.00", "15.00"}, amounts)

	tax := settlement.SelectElement("ApplicableTradeTax")
	assert.Equal(t, []string{"CalculatedAmount", "TypeCode", "BasisAmount", "CategoryCode", "RateApplicablePercent"}, childTags(tax))
}

func TestSample_ValidForEveryProfile(t *testing.T) {
	data := loadSample(t, "en16931.yaml")
	for _, p := range registry(t).List() {
		t.Run(p.ID, func(t *testing.T) {
			tree, err := validate.Validate(p, data)
			require.NoError(t, err)

			out, err := projection.Project(p, tree)
			require.NoError(t, err)
			xml, err := xmlout.Serialize(out)
			require.NoError(t, err)
			assert.Contains(t, string(xml), p.SpecificationID)
		})
	}
}

func TestBasic_RequiresLines(t *testing.T) {
	data := loadSample(t, "en16931.yaml")
	tx := data["transaction"].(map[string]any)
	tx["line"] = []any{}

	p, err := registry(t).Get(profile.Basic)
	require.NoError(t, err)

	_, err = validate.Validate(p, data)
	list, ok := model.AsValidationErrors(err)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, model.ErrCodeConstraintViolation, list[0].Code)
	assert.Equal(t, "transaction.line", list[0].Path)
}

package profile

import (
	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/schema"
)

func (b builder) seller() *schema.Node {
	return object("ram:SellerTradeParty",
		b.from(basicWL,
			schema.Field("id", text("ram:ID")),
			schema.Field("globalId", schemed("ram:GlobalID", codelist.Identifier).Optional()),
		),
		all(
			schema.Field("name", schema.String("ram:Name")),
		),
		b.from(en16931,
			schema.Field("description", text("ram:Description")),
		),
		all(
			schema.Field("legalOrganization", b.legalOrganization().Optional()),
		),
		b.from(en16931,
			schema.Field("contact", contact().Optional()),
		),
		all(
			schema.Field("postalAddress", b.address()),
		),
		b.from(basicWL,
			schema.Field("electronicAddress", b.electronicAddress().Optional()),
		),
		all(
			schema.Field("taxRegistration", b.taxRegistration(true).Optional()),
		),
	)
}

func (b builder) buyer() *schema.Node {
	return object("ram:BuyerTradeParty",
		b.from(basicWL,
			schema.Field("id", text("ram:ID")),
			schema.Field("globalId", schemed("ram:GlobalID", codelist.Identifier).Optional()),
		),
		all(
			schema.Field("name", schema.String("ram:Name")),
			schema.Field("legalOrganization", b.legalOrganization().Optional()),
		),
		b.from(en16931,
			schema.Field("contact", contact().Optional()),
		),
		b.from(basicWL,
			schema.Field("postalAddress", b.address()),
			schema.Field("electronicAddress", b.electronicAddress().Optional()),
			schema.Field("taxRegistration", b.taxRegistration(false).Optional()),
		),
	)
}

func (b builder) taxRepresentative() *schema.Node {
	return object("ram:SellerTaxRepresentativeTradeParty",
		all(
			schema.Field("name", schema.String("ram:Name")),
			schema.Field("postalAddress", b.address()),
			schema.Field("taxRegistration", b.taxRegistration(false)),
		),
	)
}

func (b builder) shipTo() *schema.Node {
	return object("ram:ShipToTradeParty",
		all(
			schema.Field("id", text("ram:ID")),
			schema.Field("globalId", schemed("ram:GlobalID", codelist.Identifier).Optional()),
			schema.Field("name", text("ram:Name")),
			schema.Field("postalAddress", b.address().Optional()),
		),
	)
}

func (b builder) payee() *schema.Node {
	return object("ram:PayeeTradeParty",
		all(
			schema.Field("id", text("ram:ID")),
			schema.Field("globalId", schemed("ram:GlobalID", codelist.Identifier).Optional()),
			schema.Field("name", schema.String("ram:Name")),
			schema.Field("legalOrganization", b.legalOrganization().Optional()),
		),
	)
}

func (b builder) legalOrganization() *schema.Node {
	return object("ram:SpecifiedLegalOrganization",
		all(
			schema.Field("id", text("ram:ID")),
			schema.Field("scheme", schema.Enum(codelist.Identifier, "ram:ID/@schemeID").Optional()),
		),
		b.from(basicWL,
			schema.Field("tradingName", text("ram:TradingBusinessName")),
		),
	)
}

func contact() *schema.Node {
	return object("ram:DefinedTradeContact",
		all(
			schema.Field("personName", text("ram:PersonName")),
			schema.Field("departmentName", text("ram:DepartmentName")),
			schema.Field("telephone", text("ram:TelephoneUniversalCommunication/ram:CompleteNumber")),
			schema.Field("email", text("ram:EmailURIUniversalCommunication/ram:URIID")),
		),
	)
}

// address is reduced to the country at MINIMUM
func (b builder) address() *schema.Node {
	return object("ram:PostalTradeAddress",
		b.from(basicWL,
			schema.Field("postCode", text("ram:PostcodeCode")),
			schema.Field("lineOne", text("ram:LineOne")),
			schema.Field("lineTwo", text("ram:LineTwo")),
			schema.Field("lineThree", text("ram:LineThree")),
			schema.Field("city", text("ram:CityName")),
		),
		all(
			schema.Field("countryId", schema.Enum(codelist.Country, "ram:CountryID")),
		),
		b.from(basicWL,
			schema.Field("countrySubDivision", text("ram:CountrySubDivisionName")),
		),
	)
}

func (b builder) electronicAddress() *schema.Node {
	return schemed("ram:URIUniversalCommunication/ram:URIID", codelist.ElectronicScheme)
}

// taxRegistration holds the VAT identifier and, for sellers, the local tax
// number. Both project to SpecifiedTaxRegistration and differ only in the
// scheme attribute.
func (b builder) taxRegistration(fiscal bool) *schema.Node {
	registration := func(scheme string) *schema.Node {
		return object("ram:SpecifiedTaxRegistration",
			all(
				schema.Field("id", schema.String("ram:ID")),
				schema.Fixed("ram:ID/@schemeID", scheme),
			),
		)
	}

	entries := all(
		schema.Field("vat", registration("VA").Optional().InGroup("taxRegistration")),
	)
	if fiscal {
		entries = append(entries, b.from(basicWL,
			schema.Field("fiscal", registration("FC").Optional().InGroup("taxRegistration").After("vat")),
		)...)
	}
	return object(".", entries)
}

package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/codelist"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/schema"
)

func testCodes(t *testing.T) *codelist.Registry {
	t.Helper()
	reg, err := codelist.Default()
	require.NoError(t, err)
	return reg
}

func newProfile(root *schema.Node) *schema.Profile {
	return &schema.Profile{
		ID:                 "test",
		Name:               "TEST",
		AttachmentFileName: "factur-x.xml",
		RootElement:        "rsm:Doc",
		Namespaces: []schema.Namespace{
			{Prefix: "rsm", URI: "urn:test:rsm"},
			{Prefix: "ram", URI: "urn:test:ram"},
		},
		Root: root,
	}
}

func allowanceGroup() *schema.Node {
	return schema.Object(".",
		schema.Field("discount", schema.Object("ram:Charge",
			schema.Fixed("ram:Indicator", "false"),
			schema.Field("amount", schema.Number("ram:Amount")),
		).Optional().InGroup("charges")),
		schema.Field("surcharges", schema.Array("ram:Charge",
			schema.Fixed("ram:Indicator", "true"),
			schema.Field("amount", schema.Number("ram:Amount")),
		).Optional().InGroup("charges").After("discount")),
	)
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		input    string
		elements []string
		attr     string
	}{
		{".", nil, ""},
		{"ram:ID", []string{"ram:ID"}, ""},
		{"ram:A/ram:B", []string{"ram:A", "ram:B"}, ""},
		{"ram:A/@schemeID", []string{"ram:A"}, "schemeID"},
		{"@currencyID", nil, "currencyID"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p, err := schema.ParsePath(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.elements, p.Elements)
			assert.Equal(t, tt.attr, p.Attr)
			assert.Equal(t, tt.input, p.String())
		})
	}
}

func TestParsePath_Invalid(t *testing.T) {
	for _, input := range []string{"", "ram:A//ram:B", "@a/ram:B", "ram:A/@", "ram A", "/ram:A"} {
		_, err := schema.ParsePath(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestCompile_Valid(t *testing.T) {
	p := newProfile(schema.Object(".",
		schema.Field("id", schema.String("ram:Header/ram:ID")),
		schema.Field("type", schema.Enum(codelist.DocumentType, "ram:Header/ram:TypeCode").Default("380")),
		schema.Field("charges", allowanceGroup()),
	))

	compiled, err := schema.Compile(p, testCodes(t))
	require.NoError(t, err)
	assert.True(t, compiled.Compiled())
	assert.Equal(t, 4, compiled.Leaves())

	typ := schema.Children(p.Root)[1]
	assert.Equal(t, "type", typ.Key())
	assert.False(t, typ.Required(), "a defaulted node is optional")
	require.NotNil(t, typ.Codes())
	assert.True(t, typ.Codes().Contains("381"))
}

func TestCompile_ReportsEveryProblem(t *testing.T) {
	p := newProfile(schema.Object(".",
		schema.Field("a", schema.String("")),
		schema.Field("b", schema.Enum("NOPE", "ram:B")),
		schema.Field("c", schema.String("x:C")),
		schema.Field("d", schema.Object("ram:D")),
	))

	_, err := schema.Compile(p, testCodes(t))
	require.Error(t, err)

	var malformed *model.MalformedSchemaError
	require.True(t, errors.As(err, &malformed))
	assert.Len(t, malformed.Problems(), 4)
	assert.Equal(t, "test", malformed.Profile)
}

func TestCompile_GroupChecks(t *testing.T) {
	tests := []struct {
		name    string
		root    *schema.Node
		message string
	}{
		{
			name: "sibling without group",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A", schema.Field("x", schema.String("ram:X")))),
				schema.Field("b", schema.Object("ram:A", schema.Field("x", schema.String("ram:X"))).After("a")),
			),
			message: "set without a group",
		},
		{
			name: "dangling sibling",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A",
					schema.Fixed("ram:K", "1"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("missing")),
			),
			message: "dangling sibling reference",
		},
		{
			name: "sibling target has no group",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A", schema.Field("x", schema.String("ram:X")))),
				schema.Field("b", schema.Object("ram:A",
					schema.Fixed("ram:K", "1"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("a")),
			),
			message: "has no group",
		},
		{
			name: "different anchors",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A",
					schema.Fixed("ram:K", "1"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g")),
				schema.Field("b", schema.Object("ram:B",
					schema.Fixed("ram:K", "2"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("a")),
			),
			message: "incompatible shapes",
		},
		{
			name: "no common discriminator",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A",
					schema.Fixed("ram:K", "1"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g")),
				schema.Field("b", schema.Object("ram:A",
					schema.Fixed("ram:L", "2"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("a")),
			),
			message: "incompatible shapes",
		},
		{
			name: "cycle",
			root: schema.Object(".",
				schema.Field("a", schema.Object("ram:A",
					schema.Fixed("ram:K", "1"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("b")),
				schema.Field("b", schema.Object("ram:A",
					schema.Fixed("ram:K", "2"),
					schema.Field("x", schema.String("ram:X")),
				).InGroup("g").After("a")),
			),
			message: "form a cycle",
		},
		{
			name: "grouped scalar",
			root: schema.Object(".",
				schema.Field("a", schema.String("ram:A").InGroup("g")),
			),
			message: "only objects and arrays may be grouped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Compile(newProfile(tt.root), testCodes(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCompile_NodeReuse(t *testing.T) {
	shared := schema.String("ram:X")
	p := newProfile(schema.Object(".",
		schema.Field("a", shared),
		schema.Field("b", shared),
	))

	_, err := schema.Compile(p, testCodes(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "used more than once")
}

func TestCompile_BadDefault(t *testing.T) {
	p := newProfile(schema.Object(".",
		schema.Field("type", schema.Enum(codelist.DocumentType, "ram:T").Default("999")),
		schema.Field("flag", schema.Boolean("ram:F").Default("yes")),
	))

	_, err := schema.Compile(p, testCodes(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in code list")
	assert.Contains(t, err.Error(), "not a boolean")
}

func TestPlan_GroupResolvedOnce(t *testing.T) {
	root := schema.Object(".",
		schema.Field("surcharges", schema.Array("ram:Charge",
			schema.Fixed("ram:Indicator", "true"),
			schema.Field("amount", schema.Number("ram:Amount")),
		).InGroup("charges").After("discount")),
		schema.Field("note", schema.String("ram:Note").Optional()),
		schema.Field("discount", schema.Object("ram:Charge",
			schema.Fixed("ram:Indicator", "false"),
			schema.Field("amount", schema.Number("ram:Amount")),
		).InGroup("charges")),
	)
	_, err := schema.Compile(newProfile(root), testCodes(t))
	require.NoError(t, err)

	plan := root.Plan()
	require.Len(t, plan, 2)
	require.Len(t, plan[0].Group, 2)
	assert.Equal(t, "discount", plan[0].Group[0].Key())
	assert.Equal(t, "surcharges", plan[0].Group[1].Key())
	assert.Equal(t, "note", plan[1].Node.Key())
}

func TestOrder_FollowsDeclaration(t *testing.T) {
	root := schema.Object(".",
		schema.Field("tax", schema.Array("ram:Tax",
			schema.Field("amount", schema.Number("ram:CalculatedAmount")),
			schema.Fixed("ram:TypeCode", "VAT"),
			schema.Field("category", schema.String("ram:CategoryCode")),
		)),
	)
	p := newProfile(root)
	_, err := schema.Compile(p, testCodes(t))
	require.NoError(t, err)

	tax := p.Order().Child("ram:Tax")
	require.NotNil(t, tax)
	assert.Equal(t, []string{"ram:CalculatedAmount", "ram:TypeCode", "ram:CategoryCode"}, tax.Names())

	rank, ok := tax.Rank("ram:TypeCode")
	require.True(t, ok)
	assert.Equal(t, 1, rank)
}

func TestAbsolutePath(t *testing.T) {
	amount := schema.Number("ram:Summation/ram:Total")
	root := schema.Object(".",
		schema.Field("settlement", schema.Object("ram:Transaction/ram:Settlement",
			schema.Field("total", amount),
		)),
	)
	p := newProfile(root)
	_, err := schema.Compile(p, testCodes(t))
	require.NoError(t, err)

	assert.Equal(t, "rsm:Doc/ram:Transaction/ram:Settlement/ram:Summation/ram:Total", p.AbsolutePath(amount).String())
	assert.Equal(t, "settlement.total", amount.DataPath())
	assert.True(t, schema.IsLeaf(amount))
	assert.False(t, schema.IsLeaf(root))
}

func TestWalk(t *testing.T) {
	root := schema.Object(".",
		schema.Field("a", schema.String("ram:A")),
		schema.Field("b", schema.Object("ram:B", schema.Field("c", schema.String("ram:C")))),
	)
	p := newProfile(root)
	_, err := schema.Compile(p, testCodes(t))
	require.NoError(t, err)

	var keys []string
	p.Walk(func(n *schema.Node) bool {
		keys = append(keys, n.DataPath())
		return true
	})
	assert.Equal(t, []string{"", "a", "b", "b.c"}, keys)
}

func TestNode_FrozenAfterCompile(t *testing.T) {
	leaf := schema.String("ram:A")
	_, err := schema.Compile(newProfile(schema.Object(".", schema.Field("a", leaf))), testCodes(t))
	require.NoError(t, err)

	assert.Panics(t, func() { leaf.Optional() })
}

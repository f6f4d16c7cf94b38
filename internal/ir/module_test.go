package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleBuilderIDsAndDependencies(t *testing.T) {
	b := NewModuleBuilder("Module1")
	lib := b.Library("MathLib")
	c1 := b.Contract("Contract1", []Argument{Lit("hello"), ParamRef{Module: "Module1", Name: "supply", Default: IRInt(10)}},
		WithLibraries(map[string]Future{"MathLib": lib}))
	c2 := b.Contract("Contract2", []Argument{FutureRef{ID: c1.ID()}})
	call := b.Call(c2, "configure", []Argument{AccountRef{Index: 1}}, After(lib))
	mod := b.Build()

	assert.Equal(t, "Module1:Contract1", c1.ID())
	assert.Equal(t, "Module1:Contract2.configure", call.ID())
	assert.Equal(t, NamedArtifactContractDeployment, c1.Type())
	assert.Equal(t, []string{"Module1:MathLib"}, c1.Dependencies())
	assert.Equal(t, []string{"Module1:Contract1"}, c2.Dependencies())
	assert.Equal(t, []string{"Module1:Contract2", "Module1:MathLib"}, call.Dependencies())

	g, err := NewGraph(mod)
	require.NoError(t, err)
	assert.Equal(t, 4, g.Len())

	var order []string
	for _, f := range g.Futures() {
		order = append(order, f.ID())
	}
	assert.Equal(t, []string{"Module1:MathLib", "Module1:Contract1", "Module1:Contract2", "Module1:Contract2.configure"}, order)
	assert.Equal(t, []string{"Module1:Contract2.configure", "Module1:Contract1"}, []string{g.Dependents("Module1:Contract2")[0], g.Dependents("Module1:MathLib")[0]})
}

func TestNewGraphRejectsUnknownDependency(t *testing.T) {
	b := NewModuleBuilder("M")
	b.Contract("A", []Argument{FutureRef{ID: "M:Missing"}})

	_, err := NewGraph(b.Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown future "M:Missing"`)
}

func TestNewGraphDetectsCycles(t *testing.T) {
	a := &ContractDeploymentFuture{FutureMeta: FutureMeta{FutureID: "M:A", Module: "M", After: []string{"M:B"}}, ContractName: "A"}
	b := &ContractDeploymentFuture{FutureMeta: FutureMeta{FutureID: "M:B", Module: "M", After: []string{"M:A"}}, ContractName: "B"}

	_, err := NewGraph(&Module{ID: "M", Futures: []Future{a, b}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle: M:A -> M:B -> M:A")
}

func TestNewGraphRejectsCallOnNonContract(t *testing.T) {
	b := NewModuleBuilder("M")
	send := b.Send("ping", Lit("0x0000000000000000000000000000000000000001"), "0x")
	b.Call(send, "foo", nil)

	_, err := NewGraph(b.Build())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a contract future")
}

func TestSubmodulesAreFlattened(t *testing.T) {
	sub := NewModuleBuilder("Sub")
	token := sub.Contract("Token", nil)
	subMod := sub.Build()

	b := NewModuleBuilder("Main")
	b.UseModule(subMod)
	b.Call(token, "mint", []Argument{Lit(1)})
	mod := b.Build()

	g, err := NewGraph(mod)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
	assert.Len(t, mod.AllFutures(), 2)
	_, ok := g.Future("Sub:Token")
	assert.True(t, ok)
}

func TestReferencedFuturesWalksNestedArguments(t *testing.T) {
	arg := ArrayArg{Items: []Argument{
		FutureRef{ID: "M:A"},
		ObjectArg{Fields: map[string]Argument{"b": FutureRef{ID: "M:B"}, "a": Lit(1)}},
	}}

	assert.Equal(t, []string{"M:A", "M:B"}, ReferencedFutures(arg))
	assert.Empty(t, ReferencedFutures(nil))
}

func TestArguments(t *testing.T) {
	b := NewModuleBuilder("M")
	a := b.Library("A")
	z := b.Library("Z")
	c := b.Contract("C", []Argument{Lit(1), ParamRef{Module: "M", Name: "p"}},
		WithLibraries(map[string]Future{"Z": z, "A": a}), WithValue(Lit(5)))
	send := b.Send("ping", FutureRef{ID: c.ID()}, "0x")

	assert.Equal(t, []Argument{Lit(1), ParamRef{Module: "M", Name: "p"}, FutureRef{ID: a.ID()}, FutureRef{ID: z.ID()}, Lit(5)}, Arguments(c))
	assert.Equal(t, []Argument{FutureRef{ID: c.ID()}}, Arguments(send))
	assert.Empty(t, Arguments(a))
}

package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/deployer/internal/ir"
)

const tokenModules = `
modules: Lib: futures: MathLib: kind: "library"

modules: Token: {
	uses: ["Lib"]
	futures: {
		// mint comes before the contract it calls
		mint: {
			kind:     "call"
			contract: "Token"
			function: "mint"
			args: [{account: 1}, 1000000000000000000000000]
			from: {account: 0}
		}
		Token: {
			kind: "contract"
			args: ["Gold", {param: "symbol", default: "GLD"}, {owner: {account: 0}, caps: [1, 2]}]
			libraries: MathLib: "Lib:MathLib"
			value: 0
		}
		supply: {
			kind:     "staticCall"
			contract: "Token"
			function: "totalSupply"
			output:   "0"
			after: ["mint"]
		}
		Minted: {
			kind:     "readEventArgument"
			future:   "mint"
			event:    "Transfer"
			argument: "value"
			emitter:  "Token"
			index:    0
		}
		Proxy: {
			kind:     "contractAt"
			artifact: "Token"
			address:  {future: "Token"}
		}
		encoded: {
			kind:     "encodeFunctionCall"
			contract: "Token"
			function: "burn(uint256)"
			args: [1]
		}
		ping: {
			kind: "send"
			to:   {future: "Proxy"}
			data: "0x"
			value: {param: "tip", module: "Lib"}
		}
	}
}
`

func futures(m *ir.Module) map[string]ir.Future {
	out := make(map[string]ir.Future)
	for _, f := range m.AllFutures() {
		out[f.ID()] = f
	}
	return out
}

func TestCompileModules(t *testing.T) {
	mods, err := CompileString(tokenModules)
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Equal(t, "Lib", mods[0].ID)
	token := mods[1]
	assert.Equal(t, "Token", token.ID)
	require.Len(t, token.Submodules, 1)
	assert.Same(t, mods[0], token.Submodules[0], "used modules are compiled once")

	fs := futures(token)
	require.Len(t, fs, 8)

	c := fs["Token:Token"].(*ir.ContractDeploymentFuture)
	assert.Equal(t, "Token", c.ContractName)
	assert.Nil(t, c.Artifact)
	assert.Equal(t, []ir.Argument{
		ir.Lit("Gold"),
		ir.ParamRef{Module: "Token", Name: "symbol", Default: ir.IRString("GLD")},
		ir.ObjectArg{Fields: map[string]ir.Argument{
			"owner": ir.AccountRef{Index: 0},
			"caps":  ir.ArrayArg{Items: []ir.Argument{ir.Lit(1), ir.Lit(2)}},
		}},
	}, c.Args)
	assert.Equal(t, map[string]ir.Argument{"MathLib": ir.FutureRef{ID: "Lib:MathLib"}}, c.Libraries)
	assert.Equal(t, ir.Lit(0), c.Value)
	assert.Equal(t, []string{"Lib:MathLib"}, c.Dependencies())

	mint := fs["Token:mint"].(*ir.ContractCallFuture)
	assert.Equal(t, "Token:Token", mint.Contract)
	assert.Equal(t, "mint", mint.FunctionName)
	assert.Equal(t, ir.Literal{Value: ir.IRString("1000000000000000000000000")}, mint.Args[1])
	assert.Equal(t, ir.AccountRef{Index: 0}, mint.From)

	supply := fs["Token:supply"].(*ir.StaticCallFuture)
	assert.Equal(t, "0", supply.NameOrIndex)
	assert.ElementsMatch(t, []string{"Token:Token", "Token:mint"}, supply.Dependencies())

	minted := fs["Token:Minted"].(*ir.ReadEventArgumentFuture)
	assert.Equal(t, "Token:mint", minted.FutureToReadFrom)
	assert.Equal(t, "Token:Token", minted.Emitter)
	assert.Equal(t, "Transfer", minted.EventName)
	assert.Equal(t, "value", minted.NameOrIndex)

	proxy := fs["Token:Proxy"].(*ir.ContractAtFuture)
	assert.Equal(t, "Token", proxy.ContractName)
	assert.Equal(t, ir.FutureRef{ID: "Token:Token"}, proxy.Address)

	assert.Equal(t, "burn(uint256)", fs["Token:encoded"].(*ir.EncodeFunctionCallFuture).FunctionName)

	ping := fs["Token:ping"].(*ir.SendDataFuture)
	assert.Equal(t, ir.FutureRef{ID: "Token:Proxy"}, ping.To)
	assert.Equal(t, ir.ParamRef{Module: "Lib", Name: "tip"}, ping.Value)

	_, err = ir.NewGraph(token)
	require.NoError(t, err)
	assert.Empty(t, ValidateModule(token))
}

func TestCompileModules_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
	}{
		{
			name:  "no modules",
			src:   `other: 1`,
			field: "modules",
			msg:   "no modules defined",
		},
		{
			name:  "missing futures",
			src:   `modules: M: {}`,
			field: "modules.M.futures",
			msg:   "futures are required",
		},
		{
			name:  "missing kind",
			src:   `modules: M: futures: A: {}`,
			field: "modules.M.futures.A.kind",
			msg:   "kind is required",
		},
		{
			name:  "unknown kind",
			src:   `modules: M: futures: A: kind: "proxy"`,
			field: "modules.M.futures.A.kind",
			msg:   `unknown future kind "proxy"`,
		},
		{
			name:  "unknown contract",
			src:   `modules: M: futures: inc: {kind: "call", contract: "Counter", function: "inc"}`,
			field: "modules.M.futures.inc.contract",
			msg:   `unknown future "Counter"`,
		},
		{
			name:  "missing function",
			src:   `modules: M: futures: {C: kind: "contract", inc: {kind: "call", contract: "C"}}`,
			field: "modules.M.futures.inc.function",
			msg:   "function is required",
		},
		{
			name:  "float argument",
			src:   `modules: M: futures: C: {kind: "contract", args: [1.5]}`,
			field: "value",
			msg:   "float values are forbidden",
		},
		{
			name:  "cycle",
			src:   `modules: M: futures: {A: {kind: "contract", after: ["B"]}, B: {kind: "contract", after: ["A"]}}`,
			field: "futures",
			msg:   "futures form a cycle: A -> B -> A",
		},
		{
			name:  "unknown used module",
			src:   `modules: M: {uses: ["Nope"], futures: C: kind: "contract"}`,
			field: "modules.M.uses",
			msg:   `unknown module "Nope"`,
		},
		{
			name:  "module cycle",
			src:   `modules: {A: {uses: ["B"], futures: X: kind: "library"}, B: {uses: ["A"], futures: Y: kind: "library"}}`,
			field: "modules.A.uses",
			msg:   "module A is part of a uses cycle",
		},
		{
			name:  "missing address",
			src:   `modules: M: futures: C: kind: "contractAt"`,
			field: "modules.M.futures.C.address",
			msg:   "address is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src)
			require.Error(t, err)
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %T: %v", err, err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Contains(t, ce.Message, tt.msg)
		})
	}
}

func TestSelect(t *testing.T) {
	mods, err := CompileString(tokenModules)
	require.NoError(t, err)

	m, err := Select(mods, "")
	require.NoError(t, err)
	assert.Equal(t, "Token", m.ID)

	m, err = Select(mods, "Lib")
	require.NoError(t, err)
	assert.Equal(t, "Lib", m.ID)

	_, err = Select(mods, "Nope")
	assert.EqualError(t, err, `module "Nope" not found`)

	two, err := CompileString(`modules: {A: futures: X: kind: "library", B: futures: Y: kind: "library"}`)
	require.NoError(t, err)
	_, err = Select(two, "")
	assert.EqualError(t, err, "2 candidate modules (A, B), choose one with --module")
}

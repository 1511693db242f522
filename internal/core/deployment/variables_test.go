package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// expand Tests
// =============================================================================

func TestExpand(t *testing.T) {
	tests := []struct {
		name  string
		value string
		vars  map[string]string
		want  string
	}{
		{"simple", "${FEE}", map[string]string{"FEE": "250"}, "250"},
		{"default used", "${FEE:-100}", nil, "100"},
		{"value beats default", "${FEE:-100}", map[string]string{"FEE": "250"}, "250"},
		{"empty default", "${MEMO:-}", nil, ""},
		{"empty value", "${MEMO}", map[string]string{"MEMO": ""}, ""},
		{"multiple", "${A}-${B}", map[string]string{"A": "x", "B": "y"}, "x-y"},
		{"no placeholders", "plain", nil, "plain"},
		{"not a placeholder", "$FEE", nil, "$FEE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing := expand(tt.value, tt.vars)
			assert.Empty(t, missing)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_Unset(t *testing.T) {
	_, missing := expand("${ADMIN}:${FEE}", map[string]string{})

	assert.Equal(t, []string{"ADMIN", "FEE"}, missing)
}

// =============================================================================
// ExpandVariables Tests
// =============================================================================

func TestExpandVariables(t *testing.T) {
	p := Plan{
		Name: "fees",
		Steps: []Step{
			Publish("ContractStorage"),
			Publish("TuneTrader", Ref("ContractStorage")),
			Call("TuneTrader", "setFee", Literal("${FEE:-100}"), Literal("${ENABLED}")),
		},
	}

	got, err := ExpandVariables(p, map[string]string{"ENABLED": "true"})
	require.NoError(t, err)

	assert.Equal(t, "fees", got.Name)
	assert.Equal(t, p.Steps[0], got.Steps[0])
	assert.Equal(t, []Arg{Ref("ContractStorage")}, got.Steps[1].Args)
	assert.Equal(t, []Arg{Literal("100"), Literal("true")}, got.Steps[2].Args)

	// the input plan is not modified
	assert.Equal(t, Literal("${FEE:-100}"), p.Steps[2].Args[0])
}

func TestExpandVariables_Unset(t *testing.T) {
	p := Plan{Steps: []Step{
		Publish("ContractStorage"),
		Call("ContractStorage", "authorizeAddress", Literal("${ADMIN}")),
	}}

	_, err := ExpandVariables(p, nil)

	require.ErrorIs(t, err, ErrUnsetVariable)
	assert.Contains(t, err.Error(), "step 1")
}

func TestExpandVariables_NamesEveryUnset(t *testing.T) {
	p := Plan{Steps: []Step{
		Publish("ContractStorage"),
		Call("ContractStorage", "setFee", Literal("${FEE}"), Literal("${ENABLED}")),
		Call("ContractStorage", "authorizeAddress", Literal("${ADMIN}")),
		Call("ContractStorage", "setFee", Literal("${FEE}"), Literal("${ENABLED:-true}")),
	}}

	_, err := ExpandVariables(p, nil)

	require.ErrorIs(t, err, ErrUnsetVariable)
	assert.EqualError(t, err, "variable is not set: FEE (step 1), ENABLED (step 1), ADMIN (step 2)")
}

package deployment

import (
	"testing"

	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// BuildAuthorizedStorage Tests
// =============================================================================

func TestBuildAuthorizedStorage_DefaultLayout(t *testing.T) {
	p, err := BuildAuthorizedStorage(DefaultLayout())
	require.NoError(t, err)

	assert.Equal(t, "tunetrader", p.Name)
	require.Len(t, p.Steps, 7)

	assert.Equal(t, PublishLibrary("SongsLib"), p.Steps[0])
	assert.Equal(t, Link("SongsLib", "TuneTrader"), p.Steps[1])
	assert.Equal(t, Publish("ContractStorage"), p.Steps[2])
	assert.Equal(t, Publish("TuneTrader", Ref("ContractStorage")), p.Steps[3])
	assert.Equal(t, Authorize("ContractStorage", "authorizeAddress", "TuneTrader"), p.Steps[4])
	assert.Equal(t, Publish("TuneTraderExchange", Ref("ContractStorage")), p.Steps[5])
	assert.Equal(t, Authorize("ContractStorage", "authorizeAddress", "TuneTraderExchange"), p.Steps[6])
}

func TestBuildAuthorizedStorage_AppsShareStorageReference(t *testing.T) {
	p, err := BuildAuthorizedStorage(DefaultLayout())
	require.NoError(t, err)

	var ctorArgs [][]Arg
	for _, s := range p.Steps {
		if s.Kind == StepPublish && s.UnitKind == domain.KindContract && len(s.Args) > 0 {
			ctorArgs = append(ctorArgs, s.Args)
		}
	}

	require.Len(t, ctorArgs, 2)
	assert.Equal(t, ctorArgs[0], ctorArgs[1])
	assert.Equal(t, []Arg{Ref("ContractStorage")}, ctorArgs[0])
}

func TestBuildAuthorizedStorage_EachAppAuthorizedOnce(t *testing.T) {
	p, err := BuildAuthorizedStorage(DefaultLayout())
	require.NoError(t, err)

	counts := map[string]int{}
	for _, s := range p.Steps {
		if s.Kind == StepAuthorize {
			counts[s.Grantee]++
		}
	}
	assert.Equal(t, map[string]int{"TuneTrader": 1, "TuneTraderExchange": 1}, counts)
}

func TestBuildAuthorizedStorage_NoLibrary(t *testing.T) {
	p, err := BuildAuthorizedStorage(Layout{
		Name:    "plain",
		Storage: "Store",
		Apps:    []string{"App"},
	})
	require.NoError(t, err)

	require.Len(t, p.Steps, 3)
	assert.Equal(t, Publish("Store"), p.Steps[0])
	assert.Equal(t, DefaultAuthorizeMethod, p.Steps[2].Method)
}

func TestBuildAuthorizedStorage_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
	}{
		{"missing storage", Layout{Apps: []string{"App"}}},
		{"no apps", Layout{Storage: "Store"}},
		{"links without library", Layout{Storage: "Store", Apps: []string{"App"}, LinkInto: []string{"App"}}},
		{"link into unknown unit", Layout{Library: "Lib", LinkInto: []string{"Nope"}, Storage: "Store", Apps: []string{"App"}}},
		{"app doubles as storage", Layout{Storage: "Store", Apps: []string{"Store"}}},
		{"duplicate app", Layout{Storage: "Store", Apps: []string{"App", "App"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAuthorizedStorage(tt.layout)
			assert.ErrorIs(t, err, ErrInvalidPlan)
		})
	}
}

// =============================================================================
// Step Tests
// =============================================================================

func TestParseArg(t *testing.T) {
	assert.Equal(t, Ref("ContractStorage"), ParseArg("@ContractStorage"))
	assert.Equal(t, Literal("42"), ParseArg("42"))
	assert.Equal(t, Literal("@"), ParseArg("@"))
}

func TestStepString(t *testing.T) {
	assert.Equal(t, "publish library SongsLib", PublishLibrary("SongsLib").String())
	assert.Equal(t, "publish TuneTrader(@ContractStorage)", Publish("TuneTrader", Ref("ContractStorage")).String())
	assert.Equal(t, "link SongsLib into TuneTrader", Link("SongsLib", "TuneTrader").String())
	assert.Equal(t, "authorize TuneTrader on ContractStorage.authorizeAddress",
		Authorize("ContractStorage", "authorizeAddress", "TuneTrader").String())
	assert.Equal(t, "call Token.mint(@Vault, 100)", Call("Token", "mint", Ref("Vault"), Literal("100")).String())
}

func TestPlanPublished(t *testing.T) {
	p, err := BuildAuthorizedStorage(DefaultLayout())
	require.NoError(t, err)

	assert.Equal(t, []string{"SongsLib", "ContractStorage", "TuneTrader", "TuneTraderExchange"}, p.Published())
}

package deployment

import (
	"fmt"
)

// DefaultAuthorizeMethod is the storage method granting write access.
const DefaultAuthorizeMethod = "authorizeAddress"

// =============================================================================
// Authorized Storage Layout
// =============================================================================

// Layout describes the common shape of a storage-backed application:
// one optional shared library, one storage unit, and application units
// that each take the storage address as their constructor argument and
// are then authorized on it.
type Layout struct {
	Name            string
	Library         string
	LinkInto        []string
	Storage         string
	Apps            []string
	AuthorizeMethod string
}

// DefaultLayout returns the TuneTrader migration: SongsLib linked into
// TuneTrader, ContractStorage shared by TuneTrader and TuneTraderExchange.
func DefaultLayout() Layout {
	return Layout{
		Name:            "tunetrader",
		Library:         "SongsLib",
		LinkInto:        []string{"TuneTrader"},
		Storage:         "ContractStorage",
		Apps:            []string{"TuneTrader", "TuneTraderExchange"},
		AuthorizeMethod: DefaultAuthorizeMethod,
	}
}

// BuildAuthorizedStorage expands a layout into its fixed step order:
//
//	library → links → storage → app[0](@storage) → authorize app[0]
//	                          → app[1](@storage) → authorize app[1] → ...
//
// The result is validated before it is returned.
//
// Example:
//
//	p, err := BuildAuthorizedStorage(DefaultLayout())
//	// publish library SongsLib
//	// link SongsLib into TuneTrader
//	// publish ContractStorage()
//	// publish TuneTrader(@ContractStorage)
//	// authorize TuneTrader on ContractStorage.authorizeAddress
//	// publish TuneTraderExchange(@ContractStorage)
//	// authorize TuneTraderExchange on ContractStorage.authorizeAddress
func BuildAuthorizedStorage(l Layout) (Plan, error) {
	if l.Storage == "" {
		return Plan{}, &ValidationError{Index: -1, Message: "layout storage unit is required"}
	}
	if len(l.Apps) == 0 {
		return Plan{}, &ValidationError{Index: -1, Message: "layout needs at least one app unit"}
	}
	if l.Library == "" && len(l.LinkInto) > 0 {
		return Plan{}, &ValidationError{Index: -1, Message: "layout links into units but names no library"}
	}

	method := l.AuthorizeMethod
	if method == "" {
		method = DefaultAuthorizeMethod
	}

	var steps []Step
	if l.Library != "" {
		steps = append(steps, PublishLibrary(l.Library))
		for _, into := range l.LinkInto {
			steps = append(steps, Link(l.Library, into))
		}
	}

	steps = append(steps, Publish(l.Storage))
	for _, app := range l.Apps {
		steps = append(steps,
			Publish(app, Ref(l.Storage)),
			Authorize(l.Storage, method, app),
		)
	}

	p := Plan{Name: l.Name, Steps: steps}
	if err := Validate(p); err != nil {
		return Plan{}, fmt.Errorf("layout %q: %w", l.Name, err)
	}
	return p, nil
}

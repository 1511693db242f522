// Package deployment provides pure functions for deployment planning.
//
// This package contains the functional core logic for describing a contract
// deployment as an ordered list of steps. All functions are pure (no I/O,
// no side effects); the imperative shell (internal/shell/runner) interprets
// the steps against a deployer.
//
// # Functions
//
//   - Types: Step values (Publish, PublishLibrary, Link, Authorize, Call)
//   - Ordering: Check that every step only consumes earlier outputs (Validate)
//   - Planner: Expand a storage-backed layout into steps (BuildAuthorizedStorage)
//   - Naming: Check unit and method identifiers (ValidIdentifier)
//   - Variables: Substitute ${NAME} references in literal arguments (ExpandVariables)
//
// # Usage
//
//	p, err := deployment.BuildAuthorizedStorage(deployment.DefaultLayout())
//	if err != nil {
//	    return err
//	}
//	run, err := runner.Run(ctx, p, deployer)
package deployment

package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/chainhost/internal/core/artifact"
	"github.com/artpar/chainhost/internal/core/deployment"
	"github.com/artpar/chainhost/internal/core/domain"
	"github.com/artpar/chainhost/internal/shell/chain"
	"github.com/artpar/chainhost/internal/shell/store"
)

// =============================================================================
// Step Execution
// =============================================================================

// execution holds the state of one run: the run being built and the
// bytecode of units that have had libraries linked into them.
type execution struct {
	*Runner
	run      *domain.Run
	deployer chain.Deployer
	code     map[string]string
	logger   *slog.Logger
}

func (ex *execution) execute(ctx context.Context, i int, s deployment.Step) error {
	switch s.Kind {
	case deployment.StepPublish:
		return ex.publish(ctx, i, s)
	case deployment.StepLink:
		return ex.link(s)
	case deployment.StepAuthorize:
		return ex.authorize(ctx, i, s)
	case deployment.StepCall:
		return ex.call(ctx, s)
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

func (ex *execution) publish(ctx context.Context, i int, s deployment.Step) error {
	a := ex.artifact(s.Unit)

	creation, err := a.Code()
	if err != nil {
		return err
	}
	args, err := ex.resolve(s.Args)
	if err != nil {
		return err
	}
	ctorArgs, err := artifact.PackConstructor(a, args)
	if err != nil {
		return err
	}

	code := make([]byte, 0, len(creation)+len(ctorArgs))
	code = append(code, creation...)
	code = append(code, ctorArgs...)

	receipt, err := ex.deployer.Publish(ctx, s.Unit, code)
	if err != nil {
		return err
	}

	rec := domain.DeploymentRecord{
		Step:      i,
		Unit:      s.Unit,
		Kind:      s.UnitKind,
		Address:   receipt.ContractAddress,
		TxHash:    receipt.TxHash,
		CreatedAt: time.Now().UTC(),
	}
	if err := ex.run.AddRecord(rec); err != nil {
		return err
	}
	stored := ex.run.Records[len(ex.run.Records)-1]
	if err := ex.persist(ctx, func(tx store.Store) error {
		return tx.CreateRecord(ctx, &stored)
	}); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	ex.logger.Info("unit published",
		"step", i,
		"unit", s.Unit,
		"kind", string(s.UnitKind),
		"address", receipt.ContractAddress.Hex(),
		"tx", receipt.TxHash.Hex(),
	)
	return nil
}

func (ex *execution) link(s deployment.Step) error {
	addr, ok := ex.run.AddressOf(s.Unit)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRef, s.Unit)
	}

	target := ex.artifact(s.Into)
	linked, n := artifact.Link(target.Bytecode, s.Unit, target.Libraries, addr)
	if n == 0 {
		return fmt.Errorf("%w: %s has no placeholder for %s", ErrNoPlaceholder, s.Into, s.Unit)
	}
	ex.code[s.Into] = linked

	ex.logger.Info("library linked", "library", s.Unit, "into", s.Into, "address", addr.Hex(), "placeholders", n)
	return nil
}

func (ex *execution) authorize(ctx context.Context, i int, s deployment.Step) error {
	storageAddr, ok := ex.run.AddressOf(s.Unit)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRef, s.Unit)
	}
	granteeAddr, ok := ex.run.AddressOf(s.Grantee)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRef, s.Grantee)
	}

	data, err := artifact.PackCall(ex.artifact(s.Unit), s.Method, []string{granteeAddr.Hex()})
	if err != nil {
		return err
	}

	// Only a successful receipt counts as a grant.
	receipt, err := ex.deployer.Call(ctx, storageAddr, data)
	if err != nil {
		return err
	}

	grant := domain.AuthorizationGrant{
		Step:           i,
		Storage:        s.Unit,
		StorageAddress: storageAddr,
		Grantee:        s.Grantee,
		GranteeAddress: granteeAddr,
		Method:         s.Method,
		TxHash:         receipt.TxHash,
		CreatedAt:      time.Now().UTC(),
	}
	if err := ex.run.AddGrant(grant); err != nil {
		return err
	}
	stored := ex.run.Grants[len(ex.run.Grants)-1]
	if err := ex.persist(ctx, func(tx store.Store) error {
		return tx.CreateGrant(ctx, &stored)
	}); err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}

	ex.logger.Info("address authorized",
		"step", i,
		"storage", s.Unit,
		"grantee", s.Grantee,
		"grantee_address", granteeAddr.Hex(),
		"tx", receipt.TxHash.Hex(),
	)
	return nil
}

func (ex *execution) call(ctx context.Context, s deployment.Step) error {
	to, ok := ex.run.AddressOf(s.Unit)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnresolvedRef, s.Unit)
	}
	args, err := ex.resolve(s.Args)
	if err != nil {
		return err
	}
	data, err := artifact.PackCall(ex.artifact(s.Unit), s.Method, args)
	if err != nil {
		return err
	}

	receipt, err := ex.deployer.Call(ctx, to, data)
	if err != nil {
		return err
	}

	ex.logger.Info("method called", "target", s.Unit, "method", s.Method, "tx", receipt.TxHash.Hex())
	return nil
}

// persist runs write and the run update in one transaction, so a stored
// record or grant is never newer than its run.
func (ex *execution) persist(ctx context.Context, write func(tx store.Store) error) error {
	if ex.store == nil {
		return nil
	}
	return ex.store.WithTx(ctx, func(tx store.Store) error {
		if err := write(tx); err != nil {
			return err
		}
		return tx.UpdateRun(ctx, ex.run)
	})
}

// artifact returns the unit's artifact carrying any bytecode linked so far.
// Preflight guarantees the artifact exists.
func (ex *execution) artifact(unit string) *artifact.Artifact {
	a := ex.artifacts[unit]
	if code, ok := ex.code[unit]; ok {
		return a.WithBytecode(code)
	}
	return a
}

// resolve turns step arguments into their textual ABI values, replacing
// references with the recorded addresses.
func (ex *execution) resolve(args []deployment.Arg) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		if !a.IsRef() {
			out[i] = a.Value
			continue
		}
		addr, ok := ex.run.AddressOf(a.Ref)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, a.Ref)
		}
		out[i] = addr.Hex()
	}
	return out, nil
}

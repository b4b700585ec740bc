package supervisor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/piplabs/subnet-worker-client/chain"
	"github.com/piplabs/subnet-worker-client/semver"
)

// ErrWorkerInactive and ErrProtocolMismatch classify the two ways the
// startup gate can fail (spec.md §6 "Startup requires..."; §7 "Startup
// gate: fatal, process exits").
var (
	ErrWorkerInactive   = errors.New("worker is not active on SubnetControlPlane")
	ErrProtocolMismatch = errors.New("on-chain protocol version is outside the accepted range")
)

// Gate performs the startup check: isWorkerActive(wallet) must be true
// AND contract_min ≤ getProtocolVersion() ≤ contract_max. It runs
// before any store write or loop start; either failure is fatal and
// the caller must exit 1.
func Gate(ctx context.Context, client *chain.Client, contractMin, contractMax string) error {
	active, err := client.IsWorkerActive(ctx, client.Address())
	if err != nil {
		return errors.Wrap(err, "startup gate: isWorkerActive")
	}
	if !active {
		return ErrWorkerInactive
	}

	versionStr, err := client.GetProtocolVersion(ctx)
	if err != nil {
		return errors.Wrap(err, "startup gate: getProtocolVersion")
	}
	version, err := semver.Parse(versionStr)
	if err != nil {
		return errors.Wrapf(err, "startup gate: unparseable on-chain protocol version %q", versionStr)
	}
	min, err := semver.Parse(contractMin)
	if err != nil {
		return errors.Wrapf(err, "startup gate: unparseable contract_min %q", contractMin)
	}
	max, err := semver.Parse(contractMax)
	if err != nil {
		return errors.Wrapf(err, "startup gate: unparseable contract_max %q", contractMax)
	}
	if !semver.InRange(version, min, max) {
		return errors.Wrapf(ErrProtocolMismatch, "on-chain=%s accepted=[%s,%s]", versionStr, contractMin, contractMax)
	}
	return nil
}

package sampler

import (
	"context"

	"github.com/convoylab/convoy/module/party"
)

// PositionSource is the device-side position provider. Read is the one
// operation in the whole pipeline that is allowed to block for
// meaningful wall-clock time.
type PositionSource interface {
	// RequestAccess asks for position permission. Fails with
	// errs.ErrPermissionDenied or errs.ErrNotSupported.
	RequestAccess(ctx context.Context) error

	// Read acquires one raw reading. Fails with errs.ErrUnavailable or
	// errs.ErrTimeout.
	Read(ctx context.Context) (party.LocationSample, error)
}

package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/tierkeeper/internal/logger"
	"github.com/marmos91/tierkeeper/internal/telemetry"
	"github.com/marmos91/tierkeeper/pkg/location"
)

// Adapter performs tier transitions for the manipulators and probes the
// actual location of an object. A nil error from DeleteLocal or
// CopyRemoteToLocal means the transition fully succeeded.
type Adapter interface {
	DeleteLocal(ctx context.Context, hash location.ContentHash) error
	CopyRemoteToLocal(ctx context.Context, hash location.ContentHash) error
	ProbeLocation(ctx context.Context, hash location.ContentHash) (location.Location, error)
}

// Options configures a Tiered adapter.
type Options struct {
	// Digest verifies pulled bytes against the content hash.
	Digest DigestAlgorithm

	// Metrics is optional.
	Metrics Metrics
}

// Tiered is the Adapter over one local and one remote Tier.
type Tiered struct {
	local   Tier
	remote  Tier
	digest  DigestAlgorithm
	metrics Metrics
}

var _ Adapter = (*Tiered)(nil)

// New creates a Tiered adapter.
func New(local, remote Tier, opts Options) *Tiered {
	if opts.Digest == "" {
		opts.Digest = DigestNone
	}
	return &Tiered{
		local:   local,
		remote:  remote,
		digest:  opts.Digest,
		metrics: opts.Metrics,
	}
}

// Local returns the local tier.
func (a *Tiered) Local() Tier { return a.local }

// Remote returns the remote tier.
func (a *Tiered) Remote() Tier { return a.remote }

// track starts a span for one tier operation. The returned function ends it
// and records the operation in the metrics.
func (a *Tiered) track(ctx context.Context, t Tier, op string, hash location.ContentHash) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := telemetry.StartTierSpan(ctx, t.Name(), op, telemetry.ContentHash(string(hash)))
	return ctx, func(err error) {
		defer span.End()
		if errors.Is(err, ErrObjectNotFound) {
			err = nil // a miss is a valid answer
		}
		telemetry.RecordError(ctx, err)
		if a.metrics != nil {
			a.metrics.ObserveOperation(t.Name(), op, time.Since(start), err)
		}
	}
}

func (a *Tiered) stat(ctx context.Context, t Tier, hash location.ContentHash) (ObjectInfo, error) {
	ctx, done := a.track(ctx, t, "stat", hash)
	info, err := t.Stat(ctx, hash)
	done(err)
	return info, err
}

// DeleteLocal removes the local copy after checking that the remote copy
// exists with the same size.
func (a *Tiered) DeleteLocal(ctx context.Context, hash location.ContentHash) error {
	if err := hash.Validate(); err != nil {
		return err
	}

	localInfo, err := a.stat(ctx, a.local, hash)
	if err != nil {
		return fmt.Errorf("stat local %s: %w", hash, err)
	}

	remoteInfo, err := a.stat(ctx, a.remote, hash)
	switch {
	case errors.Is(err, ErrObjectNotFound):
		return fmt.Errorf("%w: %s missing from %s", ErrRemoteNotVerified, hash, a.remote.Name())
	case err != nil:
		return fmt.Errorf("stat remote %s: %w", hash, err)
	case remoteInfo.Size != localInfo.Size:
		return fmt.Errorf("%w: %s size local=%d remote=%d",
			ErrRemoteNotVerified, hash, localInfo.Size, remoteInfo.Size)
	}

	dctx, done := a.track(ctx, a.local, "delete", hash)
	err = a.local.Delete(dctx, hash)
	done(err)
	if err != nil {
		return fmt.Errorf("delete local %s: %w", hash, err)
	}

	logger.DebugCtx(ctx, "Local copy deleted", logger.KeyContentHash, hash, logger.KeyFileSize, localInfo.Size)
	return nil
}

// CopyRemoteToLocal streams the remote object into the local tier. The
// local copy appears only after the digest has been verified.
func (a *Tiered) CopyRemoteToLocal(ctx context.Context, hash location.ContentHash) error {
	if err := hash.Validate(); err != nil {
		return err
	}

	gctx, done := a.track(ctx, a.remote, "get", hash)
	body, err := a.remote.Open(gctx, hash)
	done(err)
	if err != nil {
		return fmt.Errorf("open remote %s: %w", hash, err)
	}
	defer func() { _ = body.Close() }()

	pctx, putDone := a.track(ctx, a.local, "put", hash)
	n, err := a.local.Put(pctx, hash, a.digest.Verify(body, hash))
	putDone(err)
	if err != nil {
		return fmt.Errorf("write local %s: %w", hash, err)
	}

	if a.metrics != nil {
		a.metrics.RecordBytes(a.remote.Name(), "pull", n)
	}
	logger.DebugCtx(ctx, "Remote copy pulled", logger.KeyContentHash, hash, "bytes", n)
	return nil
}

// ProbeLocation reports where the object's bytes actually are. An object in
// neither tier is LocationError. Tier failures other than a miss are
// returned as errors.
func (a *Tiered) ProbeLocation(ctx context.Context, hash location.ContentHash) (location.Location, error) {
	if err := hash.Validate(); err != nil {
		return location.LocationError, err
	}

	inLocal, err := a.present(ctx, a.local, hash)
	if err != nil {
		return location.LocationError, err
	}
	inRemote, err := a.present(ctx, a.remote, hash)
	if err != nil {
		return location.LocationError, err
	}

	switch {
	case inLocal && inRemote:
		return location.LocationDuplicated, nil
	case inLocal:
		return location.LocationLocal, nil
	case inRemote:
		return location.LocationRemote, nil
	}
	return location.LocationError, nil
}

func (a *Tiered) present(ctx context.Context, t Tier, hash location.ContentHash) (bool, error) {
	_, err := a.stat(ctx, t, hash)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	}
	return false, fmt.Errorf("probe %s on %s: %w", hash, t.Name(), err)
}

// HealthCheck checks both tiers.
func (a *Tiered) HealthCheck(ctx context.Context) error {
	if err := a.local.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s tier: %w", a.local.Name(), err)
	}
	if err := a.remote.HealthCheck(ctx); err != nil {
		return fmt.Errorf("%s tier: %w", a.remote.Name(), err)
	}
	return nil
}

// Close closes both tiers.
func (a *Tiered) Close() error {
	return errors.Join(a.local.Close(), a.remote.Close())
}

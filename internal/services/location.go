package services

import (
	"context"
	"errors"
	"time"
)

// Device location failures reported by DeviceLocator implementations.
var (
	// ErrPositionUnavailable means the device could not produce a fix at the
	// requested accuracy; a coarser retry may still succeed.
	ErrPositionUnavailable = errors.New("location: position unavailable")
	// ErrLocationDenied means the user refused the location permission;
	// retrying at any accuracy is pointless.
	ErrLocationDenied = errors.New("location: permission denied")
)

const defaultLocateTimeout = 10 * time.Second

// LocationResolverDeps wires the resolver's collaborators.
type LocationResolverDeps struct {
	Locator DeviceLocator
	Timeout time.Duration
	Logger  EventLogger
}

// LocationResolver obtains a device fix with a two-stage fallback: a precise
// request first, then one coarse retry only when the precise attempt failed
// because no position was available. Permission denials and timeouts never
// trigger the fallback.
type LocationResolver struct {
	locator DeviceLocator
	timeout time.Duration
	log     EventLogger
}

// NewLocationResolver builds a LocationResolver.
func NewLocationResolver(deps LocationResolverDeps) (*LocationResolver, error) {
	if deps.Locator == nil {
		return nil, errors.New("location: locator is required")
	}
	if deps.Timeout <= 0 {
		deps.Timeout = defaultLocateTimeout
	}
	if deps.Logger == nil {
		deps.Logger = nopEventLogger
	}
	return &LocationResolver{
		locator: deps.Locator,
		timeout: deps.Timeout,
		log:     deps.Logger,
	}, nil
}

// Resolve returns the best available device fix.
func (r *LocationResolver) Resolve(ctx context.Context) (LatLng, error) {
	fix, err := r.locate(ctx, AccuracyHigh)
	if err == nil {
		return fix, nil
	}
	if !errors.Is(err, ErrPositionUnavailable) {
		return LatLng{}, err
	}

	r.log(ctx, "location_fallback_coarse", map[string]any{"error": err.Error()})
	fix, err = r.locate(ctx, AccuracyCoarse)
	if err != nil {
		return LatLng{}, err
	}
	return fix, nil
}

func (r *LocationResolver) locate(ctx context.Context, accuracy LocationAccuracy) (LatLng, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fix, err := r.locator.Locate(callCtx, accuracy)
	if err != nil {
		return LatLng{}, err
	}
	if !fix.Valid() {
		return LatLng{}, ErrPositionUnavailable
	}
	return fix, nil
}

// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package pollpipe

import (
	"errors"
	"fmt"

	"github.com/joeycumines/logiface"
)

// Backend selects the readiness mechanism used by a Registry.
type Backend int

const (
	// BackendAuto selects epoll on Linux, kqueue on Darwin, and poll(2)
	// elsewhere.
	BackendAuto Backend = iota
	// BackendEpoll uses epoll(7). Linux only.
	BackendEpoll
	// BackendKqueue uses kqueue(2). Darwin only.
	BackendKqueue
	// BackendPoll uses poll(2), available on every Unix.
	BackendPoll
)

// String implements fmt.Stringer.
func (b Backend) String() string {
	switch b {
	case BackendAuto:
		return "auto"
	case BackendEpoll:
		return "epoll"
	case BackendKqueue:
		return "kqueue"
	case BackendPoll:
		return "poll"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// defaultEventCapacity is the initial size of the result buffers.
const defaultEventCapacity = 16

// registryOptions holds configuration options for Registry creation.
type registryOptions struct {
	logger        *logiface.Logger[logiface.Event]
	backend       Backend
	eventCapacity int
}

// --- Registry Options ---

// RegistryOption configures a Registry instance.
type RegistryOption interface {
	applyRegistry(*registryOptions) error
}

// registryOptionImpl implements RegistryOption.
type registryOptionImpl struct {
	applyRegistryFunc func(*registryOptions) error
}

func (r *registryOptionImpl) applyRegistry(opts *registryOptions) error {
	return r.applyRegistryFunc(opts)
}

// WithLogger sets the structured logger used by the Registry. A nil logger
// disables logging, which is the default.
func WithLogger(logger *logiface.Logger[logiface.Event]) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithBackend selects the readiness mechanism. NewRegistry fails with
// ErrBackendUnavailable if the backend is not supported on this platform.
func WithBackend(backend Backend) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if backend < BackendAuto || backend > BackendPoll {
			return fmt.Errorf("pollpipe: unknown backend %d", int(backend))
		}
		opts.backend = backend
		return nil
	}}
}

// WithEventCapacity sets the initial capacity of the per-cycle result buffer.
// The buffer grows to fit the number of registrations regardless.
func WithEventCapacity(n int) RegistryOption {
	return &registryOptionImpl{func(opts *registryOptions) error {
		if n <= 0 {
			return errors.New("pollpipe: event capacity must be positive")
		}
		opts.eventCapacity = n
		return nil
	}}
}

// resolveRegistryOptions applies RegistryOption instances to registryOptions.
func resolveRegistryOptions(opts []RegistryOption) (*registryOptions, error) {
	cfg := &registryOptions{
		backend:       BackendAuto,
		eventCapacity: defaultEventCapacity,
	}
	for _, opt := range opts {
		if opt == nil {
			continue // Skip nil options gracefully
		}
		if err := opt.applyRegistry(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

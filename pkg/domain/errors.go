package domain

import "errors"

// ErrThreadNotFound is returned when a thread ID cannot be found in the checkpoint store.
var ErrThreadNotFound = errors.New("thread not found")

// ErrFinalized is returned when a partial update targets a state whose final result is already set.
var ErrFinalized = errors.New("state already finalized")

// ErrRetryRegression is returned when a partial update would lower a monotonic counter.
var ErrRetryRegression = errors.New("monotonic counter cannot decrease")

// ErrSchemaMismatch marks generative output that cannot be shaped into the expected structure.
// It is never retried across providers.
var ErrSchemaMismatch = errors.New("schema mismatch")

// ErrProviderOutage is returned when every provider and model in the failover list failed.
var ErrProviderOutage = errors.New("all providers exhausted")

// ErrCycleLimit is returned when the executor exceeds its hard step bound.
var ErrCycleLimit = errors.New("graph step limit exceeded")

// ErrInvalidRoute is returned when a router selects a stage that is not among its declared targets.
var ErrInvalidRoute = errors.New("invalid route")

// ErrUnknownStage is returned when the graph references a stage that was never registered.
var ErrUnknownStage = errors.New("unknown stage")

// ErrEmptyQuery is returned when a turn is requested without a query to analyze.
var ErrEmptyQuery = errors.New("empty query")

// ErrUnknownRegime is returned for a domain outside the supported regulatory regimes.
var ErrUnknownRegime = errors.New("unknown regulatory regime")

// ErrPassageNotFound is returned by a retriever asked to expand an unknown passage identifier.
var ErrPassageNotFound = errors.New("passage not found")

package model

import "errors"

// Storage-facing sentinel errors.  Repositories translate driver errors into
// these so the booking engine can reason about them without knowing the
// database.
var (
    // ErrNotFound is returned when a requested row does not exist.
    ErrNotFound = errors.New("not found")
    // ErrDuplicate is returned when an insert violates a unique constraint.
    ErrDuplicate = errors.New("duplicate")
    // ErrStaleState is returned by conditional updates whose expected
    // current state no longer matches.
    ErrStaleState = errors.New("stale state")
    // ErrPromoExhausted is returned when a promo code reached its usage limit.
    ErrPromoExhausted = errors.New("promo code exhausted")
    // ErrCapacityOverflow is returned when a release would push the
    // available counter above capacity.
    ErrCapacityOverflow = errors.New("capacity overflow")
)

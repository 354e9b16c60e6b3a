package shared

import "errors"

// ErrProjectionDivergence indicates a cached projection no longer matches the
// fold over its ledger and requires reconciliation.
var ErrProjectionDivergence = errors.New("projection diverges from ledger")

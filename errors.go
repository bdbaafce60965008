package labelgraph

import "errors"

// ErrDisabled is returned by queries while label analysis is switched off.
// It is distinct from an empty result, which means the graph looked and
// found nothing.
var ErrDisabled = errors.New("labelgraph: label analysis is disabled")

// ErrNotFound is returned for unknown files and documents.
var ErrNotFound = errors.New("labelgraph: not found")

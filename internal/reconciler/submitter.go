package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/burrow/internal/gateway"
	"github.com/dyluth/burrow/pkg/grid"
)

// GatewaySubmitter submits batches directly to an in-process mutation
// gateway under a fixed identity. Used when the reconciler runs in the same
// process as the store client (CLI tooling, tests); browser-style clients
// submit over HTTP instead.
type GatewaySubmitter struct {
	gateway  *gateway.Gateway
	identity string
}

// NewGatewaySubmitter creates a submitter acting as the given identity.
func NewGatewaySubmitter(gw *gateway.Gateway, identity string) *GatewaySubmitter {
	return &GatewaySubmitter{gateway: gw, identity: identity}
}

// Submit encodes the operations as raw payloads and applies them through the
// gateway, exercising the same validation path as remote submissions.
func (s *GatewaySubmitter) Submit(ctx context.Context, roomID string, ops []grid.TileOperation) error {
	rawOps := make([]json.RawMessage, 0, len(ops))
	for _, op := range ops {
		data, err := json.Marshal(op)
		if err != nil {
			return fmt.Errorf("failed to marshal operation: %w", err)
		}
		rawOps = append(rawOps, data)
	}

	return s.gateway.ApplyBatch(ctx, s.identity, roomID, rawOps)
}

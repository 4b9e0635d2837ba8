// Package mock provides test doubles for model interfaces using function fields.
package mock

import (
	"context"

	"github.com/johncui/haiku/pkg/model"
)

var _ model.Provider = (*Provider)(nil)

// Provider is a test double for model.Provider.
// Set CompleteFn before calling Complete.
type Provider struct {
	CompleteFn func(ctx context.Context, req model.CompletionRequest) (string, error)
}

// Complete delegates to CompleteFn.
func (p *Provider) Complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	return p.CompleteFn(ctx, req)
}

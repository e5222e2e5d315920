// Package gateway validates storefront calls, forwards them to the payment
// Core and reshapes the replies into the four-kind error taxonomy.
package gateway

import (
	"context"
	"time"

	"github.com/Fantasim/paysync/internal/config"
	"github.com/Fantasim/paysync/internal/core"
)

// Upstream is the part of the Core client the gateway uses.
type Upstream interface {
	FetchInvoice(ctx context.Context, invoiceID string) (*core.Response, error)
	MarkDetected(ctx context.Context, tx core.DetectedTx) (*core.Response, error)
	ConfirmTransaction(ctx context.Context, invoiceID string, conf core.Confirmation) (*core.Response, error)
}

// Gateway serves the status read and the confirm write.
type Gateway struct {
	cfg      *config.Config
	upstream Upstream
	now      func() time.Time
}

// New creates a gateway. cfg supplies the Core settings checked on every
// call; upstream performs the actual HTTP exchange.
func New(cfg *config.Config, upstream Upstream) *Gateway {
	return &Gateway{
		cfg:      cfg,
		upstream: upstream,
		now:      time.Now,
	}
}

func (g *Gateway) checkConfig(withProviderSecret bool) error {
	if missing := g.cfg.MissingCoreSettings(withProviderSecret); len(missing) > 0 {
		return configError(missing)
	}
	return nil
}

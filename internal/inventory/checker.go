package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/travel-reservations/internal/clock"
	"github.com/robertarktes/travel-reservations/internal/domain"
	"golang.org/x/sync/errgroup"
)

type HolderFinder interface {
	Holders(ctx context.Context, unitID string, w domain.Window, now time.Time) ([]domain.Reservation, error)
}

// Checker decides whether a unit is held by someone other than the claimant.
type Checker struct {
	holders HolderFinder
	clock   clock.Clock
}

func NewChecker(holders HolderFinder, clk clock.Clock) *Checker {
	return &Checker{holders: holders, clock: clk}
}

// IsHeldByOther reports whether a reservation of a different user holds unitID
// over w right now. Expired holders never count, even if the store returned
// them.
func (c *Checker) IsHeldByOther(ctx context.Context, unitID string, w domain.Window, claimant string) (bool, error) {
	return c.heldByOther(ctx, unitID, w, claimant, c.clock.Now())
}

func (c *Checker) heldByOther(ctx context.Context, unitID string, w domain.Window, claimant string, now time.Time) (bool, error) {
	holders, err := c.holders.Holders(ctx, unitID, w, now)
	if err != nil {
		return false, errors.Wrapf(err, "holders of %s", unitID)
	}
	for _, h := range holders {
		if h.UserID != claimant && h.Holds(now) {
			return true, nil
		}
	}
	return false, nil
}

// HeldByOther checks all units concurrently and returns the ones held by
// another user, in input order.
func (c *Checker) HeldByOther(ctx context.Context, units []string, w domain.Window, claimant string) ([]string, error) {
	now := c.clock.Now()
	held := make([]bool, len(units))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range units {
		i, id := i, id
		g.Go(func() error {
			taken, err := c.heldByOther(gctx, id, w, claimant, now)
			if err != nil {
				return err
			}
			held[i] = taken
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for i, taken := range held {
		if taken {
			out = append(out, units[i])
		}
	}
	return out, nil
}

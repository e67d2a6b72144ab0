package service

import (
	"context"
	"time"

	"github.com/gm0202/TicketSys/internal/model"
	"github.com/gm0202/TicketSys/internal/service/ports"
)

// InventoryGuard is the only mutual exclusion for a show's inventory.
// It takes the show row lock inside the caller's transaction; the lock
// is released when that transaction commits or rolls back.
type InventoryGuard struct {
	now func() time.Time
}

// Lock locks the show row and returns the show.  With requireUpcoming
// set, a show that has already started is reported as
// model.ErrShowNotFoundOrStarted, the same as a missing one.
func (g *InventoryGuard) Lock(ctx context.Context, tx ports.Tx, showID uint64, requireUpcoming bool) (*model.Show, error) {
	show, err := tx.LockShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	if requireUpcoming && !show.Upcoming(g.now()) {
		return nil, model.ErrShowNotFoundOrStarted
	}
	return show, nil
}

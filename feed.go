package faunatyped

import (
	"context"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// Watch applies the gateway's change feed to the store until ctx ends or
// the feed closes. Added and updated documents are reconciled, removed ones
// are dropped; documents with local writes in flight are left alone. It
// fails with constants.ErrNoChangeFeed when the gateway cannot stream.
func (st *Store) Watch(ctx context.Context) error {
	feed, ok := st.stores.gw.(ChangeFeed)
	if !ok {
		return constants.ErrNoChangeFeed
	}
	events, err := feed.Changes(ctx, st.Definition())
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			st.apply(ev)
		}
	}
}

func (st *Store) apply(ev models.Event) {
	def := st.Definition()
	switch ev.Type {
	case models.EventAdd, models.EventUpdate:
		st.reconcileFetched(def, []models.Document{ev.Doc})
	case models.EventRemove:
		st.removeFetched(def, ev.Doc.Key(def.Named))
	case models.EventError:
		st.warn("change feed error", "error", ev.Error)
	default:
		st.debug("change feed event", "type", ev.Type, "cursor", ev.Cursor)
	}
}

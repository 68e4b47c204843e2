// The [faunatyped] package keeps a local, observable mirror of the
// collections of a Fauna-style document database.
//
// # Stores
//
// [New] builds a [Stores] registry over a [Gateway] (the remote side) and a
// [Persistence] adapter (the durable local side). Every collection gets a
// [Store] through [Stores.Register]; [Stores.Init] then rehydrates each
// store from persistence. Collection definitions live in the system store
// returned by [Stores.Collections] and provide the field signatures used to
// resolve references and validate payloads.
//
// # Optimistic writes
//
// [Store.Create], [Handle.Update], [Handle.Replace] and [Handle.Delete]
// apply to the mirror immediately and return. The remote call runs in the
// background and its result is reconciled into the mirror when it arrives.
// A confirmation never overwrites a local edit made after it was issued.
//
// Documents created locally carry a temporary id (see
// [github.com/Etesie/fauna-typed/pkg/models.NewTempID]) until the service
// assigns the real one; the entry is then renamed in place and handles held
// under the temporary id keep working.
//
// # Reads
//
// A [Handle] always reads the current entry of the mirror. Reference fields
// are stored as [Ref] values bound to the sibling store, so following a
// relationship reads live data rather than a copy.
//
// [Store.All] and [Store.Where] return a [Page] served from the mirror at
// once; [Page.After] walks the remote result set one batch at a time.
//
// # History
//
// Every committed change of a store is undoable with [Store.Undo] and
// redoable with [Store.Redo], up to a bounded depth.
package faunatyped

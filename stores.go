package faunatyped

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
	"github.com/Etesie/fauna-typed/pkg/persistence"
)

// systemDefinition describes the system collection holding the
// definitions of every other collection.
var systemDefinition = models.Collection{Name: constants.SystemCollection, Named: true}

type Option func(s *Stores)

func WithLogger(l logger.Logger) Option {
	return func(s *Stores) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistoryLimit bounds the undo and redo stacks of every store.
func WithHistoryLimit(n int) Option {
	return func(s *Stores) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithSubscriberBuffer sets the channel size of Store.Subscribe.
func WithSubscriberBuffer(n int) Option {
	return func(s *Stores) {
		if n > 0 {
			s.subBuf = n
		}
	}
}

// WithPageSize bounds the number of cached documents returned in the
// first page of All and Where.
func WithPageSize(n int) Option {
	return func(s *Stores) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithoutValidation accepts remote and stored payloads without checking
// them against the collection definition.
func WithoutValidation() Option {
	return func(s *Stores) { s.validate = false }
}

// Stores is the registry of collection stores sharing one gateway and one
// persistence adapter. References between documents resolve through it.
type Stores struct {
	gw      Gateway
	storage Persistence
	logger  logger.Logger

	historyLimit int
	subBuf       int
	pageSize     int
	validate     bool

	ctx    context.Context
	cancel context.CancelFunc
	work   tracker

	mu       sync.RWMutex
	stores   map[string]*Store
	order    []string
	system   *Store
	initDone bool
	closed   bool
}

// New returns a registry holding only the system collection store. A nil
// storage keeps nothing across restarts.
func New(gw Gateway, storage Persistence, opts ...Option) *Stores {
	if storage == nil {
		storage = persistence.Nop{}
	}
	s := &Stores{
		gw:           gw,
		storage:      storage,
		logger:       logger.Default(),
		historyLimit: constants.DefaultHistoryLimit,
		subBuf:       constants.DefaultSubscriberBuf,
		pageSize:     constants.DefaultPageSize,
		validate:     true,
		stores:       map[string]*Store{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.system = newStore(s, constants.SystemCollection)
	s.stores[constants.SystemCollection] = s.system
	return s
}

// Register returns the store of the named collection, creating it if
// needed. Stores registered after Init are rehydrated at once.
func (s *Stores) Register(name string) (*Store, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", constants.ErrUnknownCollection)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, constants.ErrStoresClosed
	}
	if st, ok := s.stores[name]; ok {
		s.mu.Unlock()
		return st, nil
	}
	st := newStore(s, name)
	s.stores[name] = st
	s.order = append(s.order, name)
	initDone := s.initDone
	s.mu.Unlock()

	if initDone {
		st.rehydrate(s.ctx)
	}
	return st, nil
}

// Define registers def's collection and stores def in the system
// collection, so its field signatures apply to the new store.
func (s *Stores) Define(def models.Collection) (*Store, error) {
	st, err := s.Register(def.Name)
	if err != nil {
		return nil, err
	}
	if _, err := s.system.Upsert(def.ToDocument(), ""); err != nil {
		return nil, err
	}
	return st, nil
}

// Store returns a registered store.
func (s *Stores) Store(name string) (*Store, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stores[name]
	return st, ok
}

// Collections returns the store of the system collection.
func (s *Stores) Collections() *Store {
	return s.system
}

// Names lists the registered collections in registration order, without
// the system collection.
func (s *Stores) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Stores) all() []*Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Store, 0, len(s.order)+1)
	out = append(out, s.system)
	for _, name := range s.order {
		out = append(out, s.stores[name])
	}
	return out
}

// Init rehydrates the system store, then every registered store, from
// persistence. Definitions are thus known before any document that needs
// them is resolved.
func (s *Stores) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return constants.ErrStoresClosed
	}
	s.initDone = true
	s.mu.Unlock()

	for _, st := range s.all() {
		if err := ctx.Err(); err != nil {
			return err
		}
		st.rehydrate(ctx)
	}
	return nil
}

// Close waits for in-flight remote work to finish, or for ctx to end.
// Further registrations fail with constants.ErrStoresClosed.
func (s *Stores) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.work.wait(ctx)
	s.cancel()
	return err
}

// Destroy empties every store and removes its persisted contents.
func (s *Stores) Destroy(ctx context.Context) error {
	var errs []error
	for _, st := range s.all() {
		if err := st.Destroy(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// definition returns the collection definition of name, or a bare one
// when the system store does not hold it.
func (s *Stores) definition(name string) models.Collection {
	if name == constants.SystemCollection {
		return systemDefinition
	}
	bare := models.Collection{Name: name, Named: models.IsSystemCollection(name)}
	doc, ok := s.system.current(name)
	if !ok {
		return bare
	}
	def, err := models.CollectionFromDocument(rawDocument(doc))
	if err != nil {
		s.logger.Warn("ignoring collection definition", "collection", name, "error", err)
		return bare
	}
	return def
}

// tracker counts in-flight work and lets callers wait for it to drain.
type tracker struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (t *tracker) add() {
	t.mu.Lock()
	if t.n == 0 {
		t.idle = make(chan struct{})
	}
	t.n++
	t.mu.Unlock()
}

func (t *tracker) done() {
	t.mu.Lock()
	t.n--
	if t.n == 0 {
		close(t.idle)
	}
	t.mu.Unlock()
}

func (t *tracker) wait(ctx context.Context) error {
	t.mu.Lock()
	if t.n == 0 {
		t.mu.Unlock()
		return nil
	}
	idle := t.idle
	t.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package constants

import "time"

const (
	// DefaultPageSize is the number of documents requested per remote batch.
	DefaultPageSize = 16

	// DefaultHistoryLimit bounds both the undo and the redo stack.
	DefaultHistoryLimit = 20

	// TempIDPrefix marks identities assigned by the client before the
	// service has confirmed a create.
	TempIDPrefix = "TEMP_"

	// SystemCollection is the name of the collection holding collection
	// definitions. Its documents are identified by name.
	SystemCollection = "Collection"

	DefaultEndpoint       = "https://db.fauna.com"
	DefaultRequestTimeout = 10 * time.Second
	DefaultSubscriberBuf  = 64

	// RequestIDLength is the length of the id tagged onto every query.
	RequestIDLength = 16
)

var (
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
)

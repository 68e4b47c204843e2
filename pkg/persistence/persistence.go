// Package persistence stores the contents of each collection cache under
// one key per collection. Values are the tagged serialization of every
// cached document, references included; there is no compression and no
// versioned migration.
package persistence

import (
	"fmt"

	"github.com/Etesie/fauna-typed/internal/codec"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/logger"
	"github.com/Etesie/fauna-typed/pkg/models"
)

// decode reads a stored array of documents. Entries that do not decode are
// skipped with a warning; a value that is not an array at all is an error.
func decode(u codec.Unmarshaler, data []byte, key string, log logger.Logger) ([]models.Document, error) {
	var raw any
	if err := u.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", constants.ErrMalformed, key, err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: stored value is %T", constants.ErrMalformed, key, raw)
	}
	docs := make([]models.Document, 0, len(items))
	for i, item := range items {
		doc, err := models.UntagDocument(item)
		if err != nil {
			log.Warn("skipping stored document", "key", key, "index", i, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/commitlog-cdc/schema"
	"github.com/rs/zerolog/log"
)

// SchemaCache is the table schema cache in front of the schema provider
type SchemaCache interface {
	Len() int
	Invalidate(id schema.TableID)
	Purge()
}

// handleSchemaCache reports how many table schemas are cached
func (h *Handlers) handleSchemaCache(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]int{"tables": h.schemas.Len()}, false, "")
}

// handlePurgeSchemaCache drops every cached table schema
func (h *Handlers) handlePurgeSchemaCache(w http.ResponseWriter, r *http.Request) {
	h.schemas.Purge()
	log.Info().Msg("Schema cache purged via admin API")
	w.WriteHeader(http.StatusNoContent)
}

// handleInvalidateTable drops one table, addressed as keyspace.table, so the
// next record of that table reloads its columns
func (h *Handlers) handleInvalidateTable(w http.ResponseWriter, r *http.Request) {
	id, err := schema.ParseTableID(chi.URLParam(r, "table"))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	h.schemas.Invalidate(id)
	log.Info().Str("table", id.String()).Msg("Table schema invalidated via admin API")
	w.WriteHeader(http.StatusNoContent)
}

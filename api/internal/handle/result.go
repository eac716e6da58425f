package handle

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"label-reader/api/internal/store"
)

const noResultMessage = "Nenhum resultado gerado ainda."

// Result returns the last stored document.
func (h *Handle) Result(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"erro": "GET only"})
		return
	}
	doc, err := h.runner.Last(r.Context())
	switch {
	case errors.Is(err, store.ErrEmpty):
		code := http.StatusOK
		if h.errorStatus {
			code = http.StatusNotFound
		}
		writeJSON(w, code, map[string]string{"mensagem": noResultMessage})
	case err != nil:
		h.log.Error("read last result failed", zap.Error(err))
		writeJSON(w, h.failStatus(err), map[string]string{"erro": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"json_result": doc})
	}
}

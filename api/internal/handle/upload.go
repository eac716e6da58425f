package handle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/util"
)

type UploadRequest struct {
	ImageB64 string `json:"image_b64"`
	LLMName  string `json:"llm_name"`
}

// Upload accepts a multipart "file" field, a JSON body with image_b64, or the
// raw image bytes as the body.
func (h *Handle) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "POST only"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	img, llmName, err := h.readImage(r)
	if err != nil {
		h.log.Warn("upload rejected", zap.Error(err))
		writeJSON(w, h.failStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if q := strings.TrimSpace(r.URL.Query().Get("llm_name")); q != "" {
		llmName = q
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.deadline(r))
	defer cancel()

	out, err := h.runner.Run(ctx, img, llmName)
	if err != nil {
		writeJSON(w, h.failStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"json_result": out})
}

func (h *Handle) readImage(r *http.Request) ([]byte, string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxBytes); err != nil {
			return nil, "", apperr.Decode(fmt.Errorf("bad multipart: %w", err))
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			return nil, "", apperr.Decode(errors.New("missing form field \"file\""))
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, "", apperr.Decode(err)
		}
		return checkImage(b, fh.Header.Get("Content-Type"), "", r.FormValue("llm_name"))
	case "application/json":
		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, "", apperr.Decode(fmt.Errorf("bad json: %w", err))
		}
		b, hint, err := util.DecodeBase64MaybeDataURL(req.ImageB64)
		if err != nil {
			return nil, "", apperr.Decode(fmt.Errorf("bad image_b64: %w", err))
		}
		return checkImage(b, "", hint, req.LLMName)
	default:
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", apperr.Decode(err)
		}
		return checkImage(b, r.Header.Get("Content-Type"), "", "")
	}
}

// checkImage rejects empty bodies and bytes that are not a supported image
// format before any work is done. declared and hint only feed the message.
func checkImage(b []byte, declared, hint, llmName string) ([]byte, string, error) {
	if len(b) == 0 {
		return nil, "", apperr.Decode(errors.New("empty image"))
	}
	if util.SniffImageMIME(b) == util.MIMEUnknown {
		return nil, "", apperr.Decode(fmt.Errorf("not a supported image: declared %q, detected %q",
			util.PickMIME(declared, hint, nil), util.PickMIME("", "", b)))
	}
	return b, strings.TrimSpace(llmName), nil
}

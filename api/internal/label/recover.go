package label

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"label-reader/api/internal/apperr"
)

var (
	reJSONFence = regexp.MustCompile("(?is)```json\\s*(.*)\\s*```")
	reAnyFence  = regexp.MustCompile("(?s)```(.*)```")
)

// ExtractPayload picks the JSON candidate out of a model reply: a json-tagged
// fence, else any fence, else the whole reply.
func ExtractPayload(reply string) string {
	if m := reJSONFence.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	if m := reAnyFence.FindStringSubmatch(reply); m != nil {
		return m[1]
	}
	return reply
}

// RecoverJSON returns the payload of reply if it is valid JSON.
func RecoverJSON(reply string) (json.RawMessage, error) {
	payload := strings.TrimSpace(ExtractPayload(reply))
	if payload == "" {
		return nil, apperr.JSONRecovery(errors.New("empty payload"))
	}
	if !json.Valid([]byte(payload)) {
		var v any
		err := json.Unmarshal([]byte(payload), &v)
		return nil, apperr.JSONRecovery(err)
	}
	return json.RawMessage(payload), nil
}

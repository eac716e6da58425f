package llm

import (
	"context"
	"fmt"
	"strings"

	"label-reader/api/internal/apperr"
)

// Request is one system+user completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
}

type Engine interface {
	Name() string
	GetModel() string
	Complete(ctx context.Context, req Request) (string, error)
}

type Engines struct {
	OpenAI  Engine
	Gemini  Engine
	Default string
}

// GetEngine resolves an llm_name as sent by clients. Empty selects Default.
func (e *Engines) GetEngine(llmName string) (Engine, error) {
	name := strings.ToLower(strings.TrimSpace(llmName))
	if name == "" {
		name = strings.ToLower(e.Default)
	}
	var eng Engine
	switch name {
	case "gpt", "openai":
		eng = e.OpenAI
	case "gemini":
		eng = e.Gemini
	default:
		return nil, apperr.InvalidRequest(fmt.Errorf("unknown llm_name %q; use 'gpt' or 'gemini'", llmName))
	}
	if eng == nil {
		return nil, apperr.InvalidRequest(fmt.Errorf("llm %q is not configured", name))
	}
	return eng, nil
}

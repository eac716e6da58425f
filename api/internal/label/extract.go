package label

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/llm"
)

// DefaultTemperature keeps the model literal.
const DefaultTemperature = 0.2

type Extractor struct {
	engine      llm.Engine
	temperature float64
	log         *zap.Logger
}

// NewExtractor uses DefaultTemperature when temperature is negative.
func NewExtractor(engine llm.Engine, temperature float64, log *zap.Logger) *Extractor {
	if temperature < 0 {
		temperature = DefaultTemperature
	}
	return &Extractor{
		engine:      engine,
		temperature: temperature,
		log:         log.With(zap.String("engine", engine.Name()), zap.String("model", engine.GetModel())),
	}
}

// Extract asks the model once to structure ocrText. A reply that is not valid
// JSON comes back as an Outcome with Failure set, not as an error.
func (x *Extractor) Extract(ctx context.Context, ocrText string) (Outcome, error) {
	reply, err := x.engine.Complete(ctx, llm.Request{
		System:      SystemInstruction,
		User:        BuildPrompt(ocrText),
		Temperature: x.temperature,
	})
	if err != nil {
		return Outcome{}, apperr.ModelService(x.engine.Name(), err)
	}
	x.log.Debug("model reply", zap.Int("length", len(reply)))

	raw, err := RecoverJSON(reply)
	if err != nil {
		x.log.Warn("model reply is not JSON", zap.Error(err))
		return Outcome{Failure: NewRecoveryFailure(ExtractPayload(reply))}, nil
	}

	var rec LabelRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		// valid JSON of another shape is still the model's answer
		x.log.Warn("model reply does not match the label schema", zap.Error(err))
		return Outcome{Raw: raw}, nil
	}
	rec.Normalize()
	return Outcome{Record: &rec}, nil
}

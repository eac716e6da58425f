package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/label"
	"label-reader/api/internal/llm"
	"label-reader/api/internal/store"
	"label-reader/api/internal/tesseract"
)

type Preprocessor interface {
	Preprocess(data []byte) (*image.Gray, error)
}

type TextExtractor interface {
	Extract(ctx context.Context, img image.Image) (tesseract.Extraction, error)
}

type EngineResolver interface {
	GetEngine(llmName string) (llm.Engine, error)
}

// Pipeline turns a label photo into a LabelRecord and keeps the latest
// outcome in the store.
type Pipeline struct {
	pre         Preprocessor
	ocr         TextExtractor
	engines     EngineResolver
	store       store.LastResult
	temperature float64
	log         *zap.Logger
}

type Deps struct {
	Preprocessor Preprocessor
	OCR          TextExtractor
	Engines      EngineResolver
	Store        store.LastResult
	Temperature  float64
	Logger       *zap.Logger
}

func New(d Deps) *Pipeline {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		pre:         d.Preprocessor,
		ocr:         d.OCR,
		engines:     d.Engines,
		store:       d.Store,
		temperature: d.Temperature,
		log:         log.Named("pipeline"),
	}
}

// Run processes one image. A model reply that is not JSON is a successful
// run whose Outcome carries the failure envelope; it is persisted as well.
func (p *Pipeline) Run(ctx context.Context, img []byte, llmName string) (label.Outcome, error) {
	start := time.Now()
	log := p.log.With(zap.String("request_id", uuid.NewString()), zap.Int("image_bytes", len(img)))

	eng, err := p.engines.GetEngine(llmName)
	if err != nil {
		return label.Outcome{}, err
	}

	ex, err := p.recognize(ctx, img, log)
	if err != nil {
		return label.Outcome{}, err
	}

	out, err := label.NewExtractor(eng, p.temperature, log).Extract(ctx, ex.Text)
	if err != nil {
		log.Error("structured extraction failed", zap.Error(err))
		return label.Outcome{}, err
	}

	doc, err := MarshalDocument(out)
	if err != nil {
		return label.Outcome{}, apperr.Storage(err)
	}
	if err := p.store.Save(ctx, doc); err != nil {
		log.Error("persist last result failed", zap.Error(err))
		return label.Outcome{}, apperr.Storage(err)
	}

	log.Info("label processed",
		zap.Bool("parsed", out.OK()),
		zap.String("engine", eng.Name()),
		zap.Duration("took", time.Since(start)))
	return out, nil
}

// OCR runs only the preprocessing and text extraction steps.
func (p *Pipeline) OCR(ctx context.Context, img []byte) (tesseract.Extraction, error) {
	return p.recognize(ctx, img, p.log)
}

func (p *Pipeline) recognize(ctx context.Context, img []byte, log *zap.Logger) (tesseract.Extraction, error) {
	gray, err := p.pre.Preprocess(img)
	if err != nil {
		log.Warn("image decode failed", zap.Error(err))
		return tesseract.Extraction{}, err
	}
	ex, err := p.ocr.Extract(ctx, gray)
	if err != nil {
		log.Error("ocr failed", zap.Error(err))
		return tesseract.Extraction{}, err
	}
	fields := []zap.Field{
		zap.Int("text_length", len(ex.Text)),
		zap.Bool("fallback", ex.Fallback),
	}
	if ex.Primary != nil {
		fields = append(fields, zap.NamedError("language_error", ex.Primary))
	}
	log.Info("ocr done", fields...)
	log.Debug("ocr text", zap.String("text", ex.Text))
	return ex, nil
}

// Last returns the persisted document, or store.ErrEmpty.
func (p *Pipeline) Last(ctx context.Context) (json.RawMessage, error) {
	b, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !json.Valid(b) {
		return nil, apperr.Storage(errors.New("stored result is not valid JSON"))
	}
	return json.RawMessage(b), nil
}

// MarshalDocument renders v the way the last result is stored: two-space
// indentation, non-ASCII kept as is.
func MarshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

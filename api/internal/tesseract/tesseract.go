package tesseract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/preprocess"
)

// DefaultLanguage is the traineddata tried before the engine default.
const DefaultLanguage = "por"

// ErrLanguageMissing marks a first attempt that failed because the language
// pack is not installed.
var ErrLanguageMissing = errors.New("tesseract language pack not installed")

// Client is the part of *gosseract.Client the extractor drives.
type Client interface {
	SetLanguage(langs ...string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

type Config struct {
	Language       string
	TessdataPrefix string
}

// Extraction is the text plus how it was obtained.
type Extraction struct {
	Text     string
	Language string // "" when the engine default produced the text
	Fallback bool
	Primary  error // why the language attempt failed, nil if it did not
}

type Extractor struct {
	language  string
	newClient func() (Client, error)
	languages func() ([]string, error)
	log       *zap.Logger
}

func New(cfg Config, log *zap.Logger) *Extractor {
	lang := strings.TrimSpace(cfg.Language)
	if lang == "" {
		lang = DefaultLanguage
	}
	prefix := strings.TrimSpace(cfg.TessdataPrefix)
	return &Extractor{
		language: lang,
		newClient: func() (Client, error) {
			c := gosseract.NewClient()
			if prefix != "" {
				if err := c.SetTessdataPrefix(prefix); err != nil {
					_ = c.Close()
					return nil, err
				}
			}
			return c, nil
		},
		languages: gosseract.GetAvailableLanguages,
		log:       log.Named("tesseract"),
	}
}

// WithClientFactory swaps the engine constructor (tests, custom builds).
func (e *Extractor) WithClientFactory(f func() (Client, error)) *Extractor {
	if f != nil {
		e.newClient = f
	}
	return e
}

// WithLanguageLister swaps the installed-language lookup.
func (e *Extractor) WithLanguageLister(f func() ([]string, error)) *Extractor {
	e.languages = f
	return e
}

func (e *Extractor) Language() string { return e.language }

// Extract runs the language attempt and, on any failure, one attempt with the
// engine default. Both use a single-uniform-block segmentation.
func (e *Extractor) Extract(ctx context.Context, img image.Image) (Extraction, error) {
	data, err := preprocess.EncodePNG(img)
	if err != nil {
		return Extraction{}, apperr.Recognition(fmt.Errorf("encode image: %w", err))
	}
	return e.ExtractBytes(ctx, data)
}

// ExtractBytes is Extract for an already encoded image.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	text, primary := e.attempt(data, e.language)
	if primary == nil {
		return Extraction{Text: text, Language: e.language}, nil
	}
	primary = e.classify(primary)
	e.log.Warn("language attempt failed, retrying with engine default",
		zap.String("language", e.language), zap.Error(primary))

	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}

	text, fallback := e.attempt(data, "")
	if fallback != nil {
		return Extraction{}, apperr.Recognition(fmt.Errorf("%s: %v; default: %w", e.language, primary, fallback))
	}
	return Extraction{Text: text, Fallback: true, Primary: primary}, nil
}

func (e *Extractor) attempt(data []byte, lang string) (string, error) {
	c, err := e.newClient()
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	if lang != "" {
		if err := c.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("set language: %w", err)
		}
	}
	if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		return "", fmt.Errorf("set page seg mode: %w", err)
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return c.Text()
}

// classify tags the failure as a missing language pack when the engine
// reports the language as not installed.
func (e *Extractor) classify(err error) error {
	if e.languages == nil {
		return err
	}
	installed, lerr := e.languages()
	if lerr != nil {
		return err
	}
	for _, l := range installed {
		if l == e.language {
			return err
		}
	}
	return fmt.Errorf("%w: %s (%v)", ErrLanguageMissing, e.language, err)
}

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"label-reader/api/internal/apperr"
	"label-reader/api/internal/label"
	"label-reader/api/internal/llm"
	"label-reader/api/internal/preprocess"
	"label-reader/api/internal/store"
	"label-reader/api/internal/tesseract"
)

const milkOCR = "Leite integral, Vitamina D\nValor energético 130 kcal"

type fakeOCR struct {
	text string
	err  error
	got  image.Image
}

func (f *fakeOCR) Extract(_ context.Context, img image.Image) (tesseract.Extraction, error) {
	f.got = img
	if f.err != nil {
		return tesseract.Extraction{}, f.err
	}
	return tesseract.Extraction{Text: f.text, Language: "por"}, nil
}

type fakeEngine struct {
	reply string
	err   error
	user  string
}

func (f *fakeEngine) Name() string     { return "fake" }
func (f *fakeEngine) GetModel() string { return "fake-1" }
func (f *fakeEngine) Complete(_ context.Context, req llm.Request) (string, error) {
	f.user = req.User
	return f.reply, f.err
}

type failingStore struct{ store.LastResult }

func (failingStore) Save(context.Context, []byte) error { return errors.New("disk full") }

func labelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for i := 0; i < 40; i++ {
		img.Set(i, 10, color.Black)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func milkReply() string {
	rec := label.LabelRecord{
		Ingredients: []label.Ingredient{
			{Name: "leite integral", Description: "Base do produto.", Safe: true},
			{Name: "Vitamina D", Safe: true},
		},
		Nutrition: []label.NutritionEntry{{Label: "Valor energético", Value: "130 kcal"}},
	}
	b, _ := json.Marshal(rec)
	return "Segue o JSON:\n```json\n" + string(b) + "\n```"
}

func newTestPipeline(t *testing.T, ocr *fakeOCR, eng *fakeEngine, st store.LastResult) *Pipeline {
	t.Helper()
	return New(Deps{
		Preprocessor: preprocess.New(preprocess.DefaultContrast),
		OCR:          ocr,
		Engines:      &llm.Engines{OpenAI: eng, Default: "gpt"},
		Store:        st,
		Temperature:  label.DefaultTemperature,
		Logger:       zap.NewNop(),
	})
}

func TestRunMilkLabelEndToEnd(t *testing.T) {
	ocr := &fakeOCR{text: milkOCR}
	eng := &fakeEngine{reply: milkReply()}
	st := store.NewFileStore(filepath.Join(t.TempDir(), "last.json"))
	p := newTestPipeline(t, ocr, eng, st)
	ctx := context.Background()

	if _, err := p.Last(ctx); !errors.Is(err, store.ErrEmpty) {
		t.Fatalf("Last() before upload err = %v, want ErrEmpty", err)
	}

	out, err := p.Run(ctx, labelPNG(t), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !out.OK() {
		t.Fatalf("expected record, got failure %+v", out.Failure)
	}

	if g, ok := ocr.got.(*image.Gray); !ok || g.Bounds().Dx() != 40 || g.Bounds().Dy() != 20 {
		t.Fatalf("OCR must receive the preprocessed gray image, got %T", ocr.got)
	}
	if !strings.Contains(eng.user, milkOCR) {
		t.Fatalf("prompt does not embed OCR text")
	}

	rec := out.Record
	if rec.Ingredients[0].Name != "Leite integral" || rec.Ingredients[1].Name != "Vitamina D" {
		t.Fatalf("unexpected ingredients: %+v", rec.Ingredients)
	}
	if !strings.Contains(rec.Nutrition[0].Label, "energético") || rec.Nutrition[0].Value != "130 kcal" {
		t.Fatalf("unexpected nutrition: %+v", rec.Nutrition)
	}
	if rec.Brand != "" || len(rec.AdditionalInfo.Claims) != 0 {
		t.Fatalf("fabricated fields: %+v", rec)
	}

	raw, err := p.Last(ctx)
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	var back label.Outcome
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshal last: %v", err)
	}
	if !reflect.DeepEqual(back.Record, rec) {
		t.Fatalf("last result differs:\n got %+v\nwant %+v", back.Record, rec)
	}
	if !strings.Contains(string(raw), "\n  \"productName\"") || !strings.Contains(string(raw), "energético") {
		t.Fatalf("stored document must be indented UTF-8, got %s", raw)
	}
}

func TestRunPersistsFailureEnvelope(t *testing.T) {
	st := store.NewFileStore(filepath.Join(t.TempDir(), "last.json"))
	p := newTestPipeline(t, &fakeOCR{text: "x"}, &fakeEngine{reply: "hello"}, st)

	out, err := p.Run(context.Background(), labelPNG(t), "gpt")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.OK() || out.Failure.Original != "hello" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	raw, err := p.Last(context.Background())
	if err != nil {
		t.Fatalf("Last() error = %v", err)
	}
	var env map[string]string
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env["erro"] != label.RecoveryFailureMessage || env["original"] != "hello" {
		t.Fatalf("unexpected stored envelope: %v", env)
	}
}

func TestRunErrorsDoNotTouchStore(t *testing.T) {
	tests := []struct {
		name string
		img  []byte
		ocr  *fakeOCR
		eng  *fakeEngine
		llm  string
		code apperr.Code
	}{
		{name: "decode", img: []byte("nope"), ocr: &fakeOCR{}, eng: &fakeEngine{}, code: apperr.CodeDecode},
		{name: "ocr", ocr: &fakeOCR{err: apperr.Recognition(errors.New("x"))}, eng: &fakeEngine{}, code: apperr.CodeRecognition},
		{name: "model", ocr: &fakeOCR{}, eng: &fakeEngine{err: errors.New("503")}, code: apperr.CodeModelService},
		{name: "unknown llm", ocr: &fakeOCR{}, eng: &fakeEngine{}, llm: "llama", code: apperr.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := store.NewFileStore(filepath.Join(t.TempDir(), "last.json"))
			p := newTestPipeline(t, tt.ocr, tt.eng, st)
			img := tt.img
			if img == nil {
				img = labelPNG(t)
			}
			_, err := p.Run(context.Background(), img, tt.llm)
			if err == nil {
				t.Fatalf("expected error")
			}
			if apperr.CodeOf(err) != tt.code {
				t.Fatalf("code = %q, want %q", apperr.CodeOf(err), tt.code)
			}
			if _, err := p.Last(context.Background()); !errors.Is(err, store.ErrEmpty) {
				t.Fatalf("store must stay empty, Last() err = %v", err)
			}
		})
	}
}

func TestRunStorageFailure(t *testing.T) {
	p := newTestPipeline(t, &fakeOCR{text: "x"}, &fakeEngine{reply: "{}"}, failingStore{})
	_, err := p.Run(context.Background(), labelPNG(t), "")
	if apperr.CodeOf(err) != apperr.CodeStorage {
		t.Fatalf("code = %q, want %q", apperr.CodeOf(err), apperr.CodeStorage)
	}
}

func TestOCROnly(t *testing.T) {
	p := newTestPipeline(t, &fakeOCR{text: milkOCR}, &fakeEngine{}, store.NewFileStore(filepath.Join(t.TempDir(), "x.json")))
	ex, err := p.OCR(context.Background(), labelPNG(t))
	if err != nil {
		t.Fatalf("OCR() error = %v", err)
	}
	if ex.Text != milkOCR {
		t.Fatalf("text = %q", ex.Text)
	}
}

func TestMarshalDocumentKeepsUnicode(t *testing.T) {
	b, err := MarshalDocument(map[string]string{"label": "Valor energético & sódio"})
	if err != nil {
		t.Fatalf("MarshalDocument() error = %v", err)
	}
	if string(b) != "{\n  \"label\": \"Valor energético & sódio\"\n}" {
		t.Fatalf("unexpected document: %q", b)
	}
}

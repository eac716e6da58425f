package label

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LabelRecord is the structured form of a food label. Fields the label does
// not state stay empty.
type LabelRecord struct {
	ProductName    string           `json:"productName"`
	Brand          string           `json:"brand"`
	Ingredients    []Ingredient     `json:"ingredients"`
	Nutrition      []NutritionEntry `json:"nutrition"`
	AdditionalInfo AdditionalInfo   `json:"additionalInfo"`
}

func (r *LabelRecord) UnmarshalJSON(b []byte) error {
	type plain LabelRecord
	aux := struct {
		*plain
		ProductName json.RawMessage `json:"productName"`
		Brand       json.RawMessage `json:"brand"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	var err error
	if r.ProductName, err = scalarText(aux.ProductName); err != nil {
		return fmt.Errorf("productName: %w", err)
	}
	if r.Brand, err = scalarText(aux.Brand); err != nil {
		return fmt.Errorf("brand: %w", err)
	}
	return nil
}

type Ingredient struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Safe        bool   `json:"safe"`
}

// UnmarshalJSON treats a missing "safe" as true. Scalars of the wrong JSON
// type are accepted: models often send numbers or "sim"/"não".
func (i *Ingredient) UnmarshalJSON(b []byte) error {
	var aux struct {
		Name        json.RawMessage `json:"name"`
		Description json.RawMessage `json:"description"`
		Safe        json.RawMessage `json:"safe"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	var err error
	if i.Name, err = scalarText(aux.Name); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if i.Description, err = scalarText(aux.Description); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	if i.Safe, err = scalarBool(aux.Safe, true); err != nil {
		return fmt.Errorf("safe: %w", err)
	}
	return nil
}

type NutritionEntry struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Category string `json:"category"`
}

// UnmarshalJSON keeps numeric values as text, e.g. "value": 6 becomes "6".
func (n *NutritionEntry) UnmarshalJSON(b []byte) error {
	var aux struct {
		Label    json.RawMessage `json:"label"`
		Value    json.RawMessage `json:"value"`
		Category json.RawMessage `json:"category"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	var err error
	if n.Label, err = scalarText(aux.Label); err != nil {
		return fmt.Errorf("label: %w", err)
	}
	if n.Value, err = scalarText(aux.Value); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if n.Category, err = scalarText(aux.Category); err != nil {
		return fmt.Errorf("category: %w", err)
	}
	return nil
}

type AdditionalInfo struct {
	Claims              []string `json:"claims"`
	Warnings            []string `json:"warnings"`
	ServingSize         string   `json:"servingSize"`
	StorageInstructions string   `json:"storageInstructions"`
}

func (a *AdditionalInfo) UnmarshalJSON(b []byte) error {
	var aux struct {
		Claims              json.RawMessage `json:"claims"`
		Warnings            json.RawMessage `json:"warnings"`
		ServingSize         json.RawMessage `json:"servingSize"`
		StorageInstructions json.RawMessage `json:"storageInstructions"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	var err error
	if a.Claims, err = textList(aux.Claims); err != nil {
		return fmt.Errorf("claims: %w", err)
	}
	if a.Warnings, err = textList(aux.Warnings); err != nil {
		return fmt.Errorf("warnings: %w", err)
	}
	if a.ServingSize, err = scalarText(aux.ServingSize); err != nil {
		return fmt.Errorf("servingSize: %w", err)
	}
	if a.StorageInstructions, err = scalarText(aux.StorageInstructions); err != nil {
		return fmt.Errorf("storageInstructions: %w", err)
	}
	return nil
}

// RecoveryFailure is stored and returned in place of a record when the model
// reply could not be turned into JSON. Keys are kept as clients know them.
type RecoveryFailure struct {
	Erro     string `json:"erro"`
	Original string `json:"original"`
}

const RecoveryFailureMessage = "Não foi possível converter para JSON"

func NewRecoveryFailure(original string) *RecoveryFailure {
	return &RecoveryFailure{Erro: RecoveryFailureMessage, Original: original}
}

// Outcome holds exactly one of Record, Failure or Raw. Raw is valid JSON from
// the model that does not have the shape of a label record; it is passed on
// untouched.
type Outcome struct {
	Record  *LabelRecord
	Failure *RecoveryFailure
	Raw     json.RawMessage
}

func (o Outcome) OK() bool { return o.Record != nil }

func (o Outcome) MarshalJSON() ([]byte, error) {
	switch {
	case o.Failure != nil:
		return marshalRaw(o.Failure)
	case o.Record != nil:
		return marshalRaw(o.Record)
	case len(o.Raw) > 0:
		return o.Raw, nil
	}
	return []byte("null"), nil
}

// marshalRaw is json.Marshal without HTML escaping; label text often has '&'.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (o *Outcome) UnmarshalJSON(b []byte) error {
	if !json.Valid(b) {
		return errors.New("outcome is not valid JSON")
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		*o = Outcome{Raw: append(json.RawMessage(nil), b...)}
		return nil
	}
	if _, ok := probe["erro"]; ok {
		var f RecoveryFailure
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*o = Outcome{Failure: &f}
		return nil
	}
	var r LabelRecord
	if err := json.Unmarshal(b, &r); err != nil {
		*o = Outcome{Raw: append(json.RawMessage(nil), b...)}
		return nil
	}
	r.Normalize()
	*o = Outcome{Record: &r}
	return nil
}

// Normalize capitalizes ingredient names and replaces nil lists with empty
// ones so the record always serializes with arrays.
func (r *LabelRecord) Normalize() {
	if r.Ingredients == nil {
		r.Ingredients = []Ingredient{}
	}
	if r.Nutrition == nil {
		r.Nutrition = []NutritionEntry{}
	}
	if r.AdditionalInfo.Claims == nil {
		r.AdditionalInfo.Claims = []string{}
	}
	if r.AdditionalInfo.Warnings == nil {
		r.AdditionalInfo.Warnings = []string{}
	}
	for i := range r.Ingredients {
		r.Ingredients[i].Name = Capitalize(r.Ingredients[i].Name)
	}
}

// Capitalize upper-cases the first letter and leaves the rest untouched.
func Capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	if unicode.IsUpper(r) || !unicode.IsLetter(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// scalarText reads a JSON string, number or bool as text. null and absent
// values give "".
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case '{', '[':
		return "", fmt.Errorf("want a scalar, got %s", raw)
	}
	// number or true/false, kept as written
	return string(raw), nil
}

func scalarBool(raw json.RawMessage, def bool) (bool, error) {
	s, err := scalarText(raw)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return def, nil
	case "true", "1", "sim", "yes":
		return true, nil
	case "false", "0", "não", "nao", "no":
		return false, nil
	}
	return false, fmt.Errorf("want a boolean, got %s", raw)
}

// textList accepts an array of scalars or a single scalar.
func textList(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] != '[' {
		s, err := scalarText(raw)
		if err != nil || s == "" {
			return nil, err
		}
		return []string{s}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, err := scalarText(it)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

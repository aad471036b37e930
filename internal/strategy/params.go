package strategy

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New()

// decodeParams converts the generic parameter mapping from the configuration
// into a typed parameter struct. Unknown keys and failed validation rules are
// configuration errors; both surface at startup, never at tick time.
func decodeParams(params map[string]any, out any) error {
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode parameters: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("validate parameters: %w", err)
	}
	return nil
}

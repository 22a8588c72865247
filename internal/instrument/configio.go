package instrument

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/instrument-config-v1.json
var configSchemaJSON string

// ConfigFile is the on-disk shape of an exported instrument setup: the
// model it was captured from and a flat path→value map.
type ConfigFile struct {
	Model  string         `json:"model"`
	Name   string         `json:"name,omitempty"`
	Config map[string]any `json:"config"`
}

type ConfigValidator struct {
	schema *jsonschema.Schema
}

func NewConfigValidator() (*ConfigValidator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("instrument-config-v1.json",
		strings.NewReader(configSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("instrument-config-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &ConfigValidator{schema: schema}, nil
}

func (v *ConfigValidator) Validate(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ExportConfig serializes the instrument's current setup.
func ExportConfig(inst *Instrument, name string) ([]byte, error) {
	file := ConfigFile{
		Model:  inst.Identity.Model,
		Name:   name,
		Config: inst.Driver.ExportConfig(),
	}
	return json.MarshalIndent(file, "", "  ")
}

// ImportConfig validates a config file and applies it to the
// instrument. The file must have been captured from the same model;
// cross-model restores could ask for ranges the hardware does not have.
func (v *ConfigValidator) ImportConfig(inst *Instrument, data []byte) error {
	if err := v.Validate(data); err != nil {
		return err
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if file.Model != inst.Identity.Model {
		return fmt.Errorf("config captured from %s cannot be applied to %s",
			file.Model, inst.Identity.Model)
	}

	return inst.Driver.ImportConfig(file.Config)
}

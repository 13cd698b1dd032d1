// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"bytes"
	"encoding/json"
	"reflect"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the generated config file schema.
const SchemaID = "https://holomush.dev/schemas/authgate.config.schema.json"

// durationPattern accepts the strings time.ParseDuration understands.
const durationPattern = `^(0|([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)$`

var durationType = reflect.TypeOf(time.Duration(0))

var (
	compiledOnce   sync.Once
	compiledSchema *jschema.Schema
	compiledErr    error
)

// GenerateSchema returns the JSON Schema for authgate YAML config files.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		FieldNameTag:               "koanf",
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == durationType {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     durationPattern,
					Description: "Go duration, e.g. 30s, 15m or 2h45m",
				}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "authgate configuration"
	schema.Description = "Schema for authgate YAML config files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATE_FAILED").Wrap(err)
	}
	return data, nil
}

// ValidateFile checks YAML config data against the generated schema.
// Unknown keys are rejected.
func ValidateFile(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	sch, err := compiled()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.Code("CONFIG_SCHEMA_VIOLATION").Errorf("config does not match schema: %v", err)
	}
	return nil
}

func compiled() (*jschema.Schema, error) {
	compiledOnce.Do(func() {
		raw, err := GenerateSchema()
		if err != nil {
			compiledErr = err
			return
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			compiledErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource("config.schema.json", doc); err != nil {
			compiledErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
			return
		}
		compiledSchema, compiledErr = c.Compile("config.schema.json")
		if compiledErr != nil {
			compiledErr = oops.Code("SCHEMA_COMPILE_FAILED").Wrap(compiledErr)
		}
	})
	return compiledSchema, compiledErr
}

// toJSONTypes rewrites YAML-decoded values into the shapes the validator
// expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toJSONTypes(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toJSONTypes(item)
		}
		return out
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// applyOutputSchema rewrites req for structured JSON output: the response
// MIME type is forced to application/json and the schema travels on the
// generation config. info, when known, gates the rewrite on the model's
// JSON-mode capability; unknown models pass through so local adapters stay
// usable. Called once at orchestration setup, never per attempt.
func applyOutputSchema(req Request, schema json.RawMessage, info *ModelInfo) (Request, error) {
	if len(schema) == 0 {
		return req, nil
	}
	if info != nil && !info.SupportsJSONMode {
		return req, fmt.Errorf("%w: %s", ErrStructuredOutputUnsupported, req.Model)
	}
	cfg := GenerationConfig{}
	if req.Config != nil {
		cfg = *req.Config
	}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = schema
	req.Config = &cfg
	return req, nil
}

// GenerateStructured runs a non-streaming generation whose answer must be
// a single JSON document valid under opts.OutputSchema, then unmarshals it
// into out (which may be nil when only validation is wanted). A reply that
// fails to parse or validate returns a NoObjectGeneratedError carrying the
// raw text.
func GenerateStructured(ctx context.Context, opts GenerateOptions, out any) (*Response, error) {
	if len(opts.OutputSchema) == 0 {
		return nil, &ConfigurationError{Message: "output schema is required"}
	}
	schema, err := compileJSONSchema(opts.OutputSchema)
	if err != nil {
		return nil, err
	}

	resp, err := Generate(ctx, opts)
	if err != nil {
		return nil, err
	}

	text := resp.Text()
	var v any
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, NewNoObjectGeneratedError(fmt.Sprintf("failed to parse JSON output: %v", err), text)
	}
	if err := schema.Validate(v); err != nil {
		return nil, NewNoObjectGeneratedError(fmt.Sprintf("JSON output failed schema validation: %v", err), text)
	}
	if out != nil {
		if err := json.Unmarshal([]byte(text), out); err != nil {
			return nil, NewNoObjectGeneratedError(fmt.Sprintf("failed to unmarshal JSON output: %v", err), text)
		}
	}
	return resp, nil
}

func compileJSONSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

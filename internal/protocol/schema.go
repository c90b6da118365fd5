package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/command.schema.json
var commandSchemaJSON string

const commandSchemaURL = "https://pumpelf.ai/schemas/command.schema.json"

var (
	commandSchemaOnce sync.Once
	commandSchema     *jsonschema.Schema
	commandSchemaErr  error
)

func compiledCommandSchema() (*jsonschema.Schema, error) {
	commandSchemaOnce.Do(func() {
		commandSchema, commandSchemaErr = jsonschema.CompileString(commandSchemaURL, commandSchemaJSON)
	})
	return commandSchema, commandSchemaErr
}

// ValidateCommandJSON checks a raw command line against the embedded schema
// before it is decoded.
func ValidateCommandJSON(raw []byte) error {
	s, err := compiledCommandSchema()
	if err != nil {
		return fmt.Errorf("compile command schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return s.Validate(doc)
}

// ParseCommand validates and decodes one command.
func ParseCommand(raw []byte) (Command, error) {
	if err := ValidateCommandJSON(raw); err != nil {
		return Command{}, &Error{Code: CodeBadCommand, Detail: err.Error()}
	}
	c, err := DecodeCommand(raw)
	if err != nil {
		return Command{}, &Error{Code: CodeBadCommand, Detail: err.Error()}
	}
	return c, nil
}

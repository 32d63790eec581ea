package ir

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProgram reads a YAML program from path. The file name becomes the
// program's source file unless the document names one.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	p, err := ParseProgram(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if p.File == "" {
		p.File = path
	}
	return p, nil
}

// ParseProgram decodes a YAML program. Unknown keys are rejected.
func ParseProgram(data []byte) (*Program, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Program
	if err := dec.Decode(&p); err != nil {
		if errors.Is(err, io.EOF) {
			return &p, nil
		}
		return nil, fmt.Errorf("parsing program: %w", err)
	}
	return &p, nil
}

// Marshal encodes a program as YAML.
func (p *Program) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

package msgpath

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/plot-visualizer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// Constants maps a field key ("/topic.field") and a value to a symbolic name,
// e.g. "/robot/state.mode" 2 -> "DOCKED".
type Constants struct {
	table map[string]map[string]string
}

type constantsFile struct {
	Constants map[string]map[string]string `yaml:"constants"`
}

// NewConstants builds a table from an in-memory map.
func NewConstants(table map[string]map[string]string) *Constants {
	if table == nil {
		table = make(map[string]map[string]string)
	}
	return &Constants{table: table}
}

// LoadConstants reads a YAML constants file. A missing file yields an empty table.
func LoadConstants(path string) (*Constants, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return NewConstants(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening constants: %w", err)
	}
	defer f.Close()
	return ParseConstants(f)
}

// ParseConstants reads a YAML constants document from r.
func ParseConstants(r io.Reader) (*Constants, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc constantsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing constants: %w", err)
	}
	return NewConstants(doc.Constants), nil
}

// Lookup returns the constant name for value at fieldKey, or "".
// Safe on a nil receiver.
func (c *Constants) Lookup(fieldKey string, value models.QueriedValue) string {
	if c == nil {
		return ""
	}
	names, ok := c.table[fieldKey]
	if !ok {
		return ""
	}
	switch value.Kind {
	case models.ValueNumber:
		return names[strconv.FormatFloat(value.Number, 'f', -1, 64)]
	case models.ValueBoolean:
		return names[strconv.FormatBool(value.Bool)]
	}
	return ""
}

// Len returns the number of fields with constants.
func (c *Constants) Len() int {
	if c == nil {
		return 0
	}
	return len(c.table)
}

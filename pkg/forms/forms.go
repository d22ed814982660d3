// Package forms describes the stored form definitions that form nodes
// collect data for.
package forms

import (
	"encoding/json"
	"fmt"
	"os"
)

// Field is one input of a form.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Form is a named set of fields.
type Form struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Lookup resolves a form id to its definition.
type Lookup interface {
	LookupForm(formID string) (Form, bool)
}

// Catalog is an in-memory Lookup keyed by form id.
type Catalog map[string]Form

// LookupForm implements Lookup.
func (c Catalog) LookupForm(formID string) (Form, bool) {
	f, ok := c[formID]
	return f, ok
}

// Add stores f under its id.
func (c Catalog) Add(f Form) {
	c[f.ID] = f
}

// LoadFile reads a JSON array of forms.
func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("forms read: %w", err)
	}
	var list []Form
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("forms unmarshal: %w", err)
	}
	c := make(Catalog, len(list))
	for _, f := range list {
		c.Add(f)
	}
	return c, nil
}

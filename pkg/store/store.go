// Package store defines persistence for flows and form definitions.
package store

import (
	"context"

	"github.com/ravi-parthasarathy/flowc/pkg/flow"
	"github.com/ravi-parthasarathy/flowc/pkg/forms"
)

// Flow is a persisted flow graph.
type Flow struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Graph flow.Graph `json:"graph"`
}

// Store defines the contract for persisting and retrieving flows and forms.
type Store interface {
	// Schema
	CreateSchema(ctx context.Context) error
	DropSchema(ctx context.Context) error

	// Flows
	SaveFlow(ctx context.Context, f *Flow) (*Flow, error)
	GetFlow(ctx context.Context, id string) (*Flow, error)
	DeleteFlow(ctx context.Context, id string) error

	// Forms
	SaveForm(ctx context.Context, f forms.Form) error
	LoadForms(ctx context.Context, ids []string) (forms.Catalog, error)
}

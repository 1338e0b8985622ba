package store

import (
	"encoding/json"
	"time"
)

// Draft is a locally persisted, possibly unsaved workflow document.
type Draft struct {
	Name       string          `json:"name"`
	WorkflowID string          `json:"workflow_id,omitempty"`
	Document   json.RawMessage `json:"document"`
	Revision   uint64          `json:"revision"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DraftFilter narrows ListDrafts.
type DraftFilter struct {
	Prefix string
	Limit  int
}

// CatalogKind names one cached backend list.
type CatalogKind string

const (
	CatalogNodes      CatalogKind = "nodes"
	CatalogConditions CatalogKind = "conditions"
	CatalogProducts   CatalogKind = "products"
	CatalogEmployees  CatalogKind = "employees"
)

// CatalogEntry is the last successfully fetched copy of a catalog list.
type CatalogEntry struct {
	Kind      CatalogKind     `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetched_at"`
}

package models

// CatalogDocument is the input artifact produced by the external cataloging
// subsystem. Top-level collections are keyed by safe name; key lookup is
// case-insensitive everywhere downstream.
type CatalogDocument struct {
	Tables     map[string]*CatalogTable   `json:"Tables"`
	Views      map[string]*CatalogTable   `json:"Views"`
	Procedures map[string]*CatalogRoutine `json:"Procedures"`
	Functions  map[string]*CatalogRoutine `json:"Functions"`
}

// CatalogTable describes a table or view.
type CatalogTable struct {
	Schema       string                   `json:"Schema"`
	OriginalName string                   `json:"Original_Name,omitempty"`
	SafeName     string                   `json:"Safe_Name,omitempty"`
	Columns      map[string]CatalogColumn `json:"Columns,omitempty"`
}

// CatalogColumn is a single table column.
type CatalogColumn struct {
	Type     string `json:"Type,omitempty"`
	Nullable bool   `json:"Nullable,omitempty"`
	Default  string `json:"Default,omitempty"`
}

// CatalogRoutine describes a stored procedure or function together with its
// table read/write references and outgoing procedure calls.
type CatalogRoutine struct {
	Schema       string     `json:"Schema"`
	OriginalName string     `json:"Original_Name,omitempty"`
	SafeName     string     `json:"Safe_Name,omitempty"`
	Reads        []TableRef `json:"Reads,omitempty"`
	Writes       []TableRef `json:"Writes,omitempty"`
	Calls        []TableRef `json:"Calls,omitempty"`
}

// TableRef is a schema-qualified reference from a routine body.
type TableRef struct {
	Schema   string `json:"Schema,omitempty"`
	Name     string `json:"Name,omitempty"`
	SafeName string `json:"Safe_Name,omitempty"`
}

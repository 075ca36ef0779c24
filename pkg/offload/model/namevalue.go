package model

// NameValue is a BigQuery-compatible type for name/value pairs.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Package memory provides in-process implementations of the relay store
// contracts. A single mutex per store stands in for the transactional
// boundary the SQL stores get from the database.
package memory

// Package store abstracts the record store the pipeline reads pending rows
// from and writes embeddings back to. The pipeline treats it as a row source
// and a bulk-update sink; everything else about the store is out of scope.
package store

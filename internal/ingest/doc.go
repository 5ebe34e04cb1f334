// Package ingest turns a source release into the extracted content of
// one dataset version: a CUE manifest declares the dimensions, a CSV
// file carries the facts rows, and Extract produces the VersionData
// the lifecycle pipeline writes to disk.
//
// Internal ids are assigned here, deterministically: filter options by
// (column, public id), locations by (level, public id), time periods
// chronologically by (code, ordinal). Time period id order is load
// bearing - the query engine sorts chronologically by id.
package ingest

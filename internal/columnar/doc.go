// Package columnar reads and writes a dataset version's parquet
// files: the facts table plus the four dimension tables (filter
// options, locations, indicators, time periods).
//
// The dimension tables have static schemas. The facts table schema is
// per-dataset - one INT64 column per filter holding the selected
// option's internal id, one UTF8 column per indicator holding the
// measure value - so it is written through a runtime-built schema
// rather than struct tags.
//
// Files are written whole: create, write all rows, close. Partially
// written files are only ever visible inside a version directory that
// the lifecycle has not yet published, so readers never observe them.
package columnar

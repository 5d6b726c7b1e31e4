// Package models defines domain entities for the tonearm release metadata service.
//
// The package contains three categories of types:
//
// 1. Query types: [Query] identifies a release lookup by artist, release
// name, and optional country code.
//
// 2. Catalog data: [CatalogResult] holds the structured release returned by
// a single catalog source, and [CanonicalRecord] is the merged view built by
// the reconciliation engine. [Track] carries per-track metadata including
// the ISRC used for cross-catalog matching.
//
// 3. Job lifecycle: [Job] tracks an asynchronous reconciliation request
// through the [JobState] machine (pending → running → completed/failed),
// with [JobError] providing a stable failure descriptor for API consumers.
package models

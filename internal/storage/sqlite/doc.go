// Package sqlite persists context hypotheses and confirmed mode
// switches. It is an adapter behind the engine's HistorySink boundary,
// not a domain layer: the engine never imports it and sink errors never
// affect engine state.
package sqlite

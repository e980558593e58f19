// Package crawler holds the domain model of the regulation crawler: sources,
// fetch results, extracted and scored documents, URL health, and the
// interfaces implemented by the fetch, storage, and alerting subsystems.
package crawler

// Package graphdb is a small client for the GraphDB / RDF4J REST API:
// repository listing and creation, repository size, and statement upload
// and removal.
package graphdb

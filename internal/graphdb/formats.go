package graphdb

import (
	"path/filepath"
	"strings"

	apperrors "graphseed/internal/errors"
)

// Format is an RDF serialisation accepted by the statements endpoint.
type Format struct {
	Name        string
	ContentType string
	Extensions  []string
}

var formats = []Format{
	{Name: "turtle", ContentType: "text/turtle", Extensions: []string{".ttl"}},
	{Name: "trig", ContentType: "application/x-trig", Extensions: []string{".trig"}},
	{Name: "ntriples", ContentType: "application/n-triples", Extensions: []string{".nt"}},
	{Name: "nquads", ContentType: "application/n-quads", Extensions: []string{".nq"}},
	{Name: "rdfxml", ContentType: "application/rdf+xml", Extensions: []string{".rdf", ".owl", ".xml"}},
	{Name: "jsonld", ContentType: "application/ld+json", Extensions: []string{".jsonld"}},
	{Name: "n3", ContentType: "text/rdf+n3", Extensions: []string{".n3"}},
	{Name: "trix", ContentType: "application/trix", Extensions: []string{".trix"}},
}

// Formats lists the supported formats.
func Formats() []Format {
	return append([]Format(nil), formats...)
}

// FormatForPath picks the format from the file extension. A trailing .gz is
// stripped first and reported through gzipped.
func FormatForPath(path string) (format Format, gzipped bool, err error) {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".gz") {
		gzipped = true
		name = strings.TrimSuffix(name, ".gz")
	}

	ext := filepath.Ext(name)
	for _, f := range formats {
		for _, candidate := range f.Extensions {
			if candidate == ext {
				return f, gzipped, nil
			}
		}
	}

	return Format{}, gzipped, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeUnknownFormat, "cannot infer RDF format from file extension", nil).
		WithModule("graphdb").
		WithOperation("FormatForPath").
		WithField("path", path)
}

// LookupFormat resolves a format by name, extension or content type.
func LookupFormat(key string) (Format, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, f := range formats {
		if f.Name == key || f.ContentType == key {
			return f, nil
		}
		for _, ext := range f.Extensions {
			if ext == key || strings.TrimPrefix(ext, ".") == key {
				return f, nil
			}
		}
	}
	return Format{}, apperrors.New(apperrors.ErrCategoryValidation, apperrors.CodeUnknownFormat, "unknown RDF format", nil).
		WithModule("graphdb").
		WithOperation("LookupFormat").
		WithField("format", key)
}

package lsp

import (
	"net/url"
	"path/filepath"
)

// uriToPath converts a file:// URI to a local path. Other URIs are used as
// they are.
func uriToPath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return filepath.FromSlash(u.Path)
}

func pathToURI(path string) DocumentURI {
	if !filepath.IsAbs(path) {
		return DocumentURI(path)
	}
	return DocumentURI((&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String())
}

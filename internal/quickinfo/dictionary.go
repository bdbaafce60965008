package quickinfo

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Dictionary maps upper-case keywords to their descriptions. A nil
// Dictionary has no entries.
type Dictionary map[string]string

// Get returns the description of word, ignoring case, or "".
func (d Dictionary) Get(word string) string {
	return d[strings.ToUpper(word)]
}

// Merge copies other's entries into d, replacing existing ones.
func (d Dictionary) Merge(other Dictionary) {
	for k, v := range other {
		d[k] = v
	}
}

// dictionaryFile is the YAML layout: keyword groups, each a map of keyword
// to description. Group names are informational.
type dictionaryFile map[string]map[string]string

// LoadDictionary decodes a YAML dictionary from r.
func LoadDictionary(r io.Reader) (Dictionary, error) {
	var f dictionaryFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("quickinfo: decode dictionary: %w", err)
	}
	d := Dictionary{}
	for _, group := range f {
		for k, v := range group {
			d[strings.ToUpper(k)] = strings.TrimSpace(v)
		}
	}
	return d, nil
}

// LoadDictionaryFile reads a YAML dictionary from path.
func LoadDictionaryFile(path string) (Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("quickinfo: open dictionary: %w", err)
	}
	defer f.Close()
	return LoadDictionary(f)
}

//go:embed dictionary.yaml
var defaultDictionary string

// DefaultDictionary returns the bundled descriptions of common x86
// mnemonics, registers and directives.
func DefaultDictionary() Dictionary {
	d, err := LoadDictionary(strings.NewReader(defaultDictionary))
	if err != nil {
		panic(fmt.Sprintf("quickinfo: bundled dictionary: %v", err))
	}
	return d
}

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// FolderEntry is one static system folder declared in the config file.
type FolderEntry struct {
	Name   string
	Secret string
}

// folderValue is the YAML shape of a static folder declaration.
type folderValue struct {
	Secret string `yaml:"secret"`
}

// FolderTable is the ordered static folder table from the config file.
// YAML mappings lose document order with a plain map type, but the
// system folders are synced in declaration order, so the table keeps
// the entries as a slice and indexes secrets separately.
type FolderTable struct {
	entries []FolderEntry
	secrets map[string]string
}

// UnmarshalYAML implements yaml.Unmarshaler by walking the mapping node
// pairwise, preserving declaration order.
func (t *FolderTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("folders must be a mapping, got %s", node.Tag)
	}

	t.entries = nil
	t.secrets = make(map[string]string, len(node.Content)/2)

	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return fmt.Errorf("decoding folder name: %w", err)
		}

		var val folderValue
		if err := node.Content[i+1].Decode(&val); err != nil {
			return fmt.Errorf("decoding folder %q: %w", name, err)
		}

		t.entries = append(t.entries, FolderEntry{Name: name, Secret: val.Secret})
		t.secrets[name] = val.Secret
	}

	return nil
}

// Entries returns the folders in declaration order.
func (t *FolderTable) Entries() []FolderEntry {
	return t.entries
}

// Secret returns the secret for a folder name, or the empty string when
// the name is not in the table. Absence is not an error; an empty
// secret changes the request shape downstream instead.
func (t *FolderTable) Secret(name string) string {
	return t.secrets[name]
}

// Len returns the number of declared folders.
func (t *FolderTable) Len() int {
	return len(t.entries)
}

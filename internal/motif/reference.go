// Package motif runs Tomtom against exported filters and scores the hits
// against reference transcription-factor motif groups.
package motif

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/motifsweep/internal/config"
)

// Group is a reference transcription factor and the database accessions
// that count as a hit for it.
type Group struct {
	Name string
	IDs  []string
}

// DefaultGroups are the JASPAR accessions of the in-vivo dataset's
// transcription factors.
var DefaultGroups = []Group{
	{"arid3", []string{"MA0151.1", "MA0601.1", "PB0001.1"}},
	{"cebpb", []string{"MA0466.1", "MA0466.2"}},
	{"fosl1", []string{"MA0477.1"}},
	{"gabpa", []string{"MA0062.1", "MA0062.2"}},
	{"mafk", []string{"MA0496.1", "MA0496.2"}},
	{"max", []string{"MA0058.1", "MA0058.2", "MA0058.3"}},
	{"mef2a", []string{"MA0052.1", "MA0052.2", "MA0052.3"}},
	{"nfyb", []string{"MA0502.1", "MA0060.1", "MA0060.2"}},
	{"sp1", []string{"MA0079.1", "MA0079.2", "MA0079.3"}},
	{"srf", []string{"MA0083.1", "MA0083.2", "MA0083.3"}},
	{"stat1", []string{"MA0137.1", "MA0137.2", "MA0137.3", "MA0660.1", "MA0773.1"}},
	{"yy1", []string{"MA0095.1", "MA0095.2"}},
}

// LoadGroups reads an ordered name: [ids] mapping.
func LoadGroups(path string) ([]Group, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading motif groups: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing motif groups: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("motif groups %s: empty file", path)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("motif groups %s: expected a mapping of name to ids", path)
	}
	var groups []Group
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var ids []string
		if err := root.Content[i+1].Decode(&ids); err != nil {
			return nil, fmt.Errorf("motif group %q: %w", name, err)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("motif group %q: no ids", name)
		}
		groups = append(groups, Group{Name: name, IDs: ids})
	}
	return groups, nil
}

// GroupsFromConfig resolves the reference table: motifs_file wins over
// inline motifs, which win over DefaultGroups.
func GroupsFromConfig(cfg *config.Config) ([]Group, error) {
	if cfg.MotifsFile != "" {
		return LoadGroups(cfg.MotifsFile)
	}
	if len(cfg.Motifs) == 0 {
		return DefaultGroups, nil
	}
	groups := make([]Group, len(cfg.Motifs))
	for i, g := range cfg.Motifs {
		groups[i] = Group{Name: g.Name, IDs: g.IDs}
	}
	return groups, nil
}

// index maps every accession to the position of its group.
func index(groups []Group) map[string]int {
	m := make(map[string]int)
	for i, g := range groups {
		for _, id := range g.IDs {
			m[id] = i
		}
	}
	return m
}

// Package reconcile keeps the remote sync service's folder set
// consistent with the locally desired one: system tools from the
// config file plus the game catalog, minus the denylist.
package reconcile

import (
	"github.com/eti-lan/peti-sync/internal/config"
	"github.com/eti-lan/peti-sync/internal/resilio"
)

// Sets is the three-way split of folders for one reconciliation run.
// System and Allow are kept synced; Deny is removed. Allow and Deny are
// disjoint by folder id.
type Sets struct {
	// System folders come straight from the config file. They are
	// always synced and never removed by the engine.
	System []resilio.Folder

	// Allow holds catalog folders whose id is not denylisted.
	Allow []resilio.Folder

	// Deny holds the catalog's discarded folders followed by any
	// catalog folders moved here by the denylist.
	Deny []resilio.Folder
}

// All returns every folder the engine knows about, in system, allow,
// deny order. Used by teardown.
func (s Sets) All() []resilio.Folder {
	all := make([]resilio.Folder, 0, len(s.System)+len(s.Allow)+len(s.Deny))
	all = append(all, s.System...)
	all = append(all, s.Allow...)
	all = append(all, s.Deny...)

	return all
}

// Assemble partitions the desired folder state. Pure in-memory
// computation: no network, no filesystem.
//
// Catalog order is preserved as given so log output stays reproducible
// between runs. Folders moved to the deny set by the denylist are
// appended after the catalog's own discarded folders, so discards are
// processed first. The denylist wins: an id present in both the catalog
// and the denylist ends up only in Deny.
func Assemble(cfg *config.Config, catalog, discarded []resilio.Folder) Sets {
	var sets Sets

	for _, entry := range cfg.Folders.Entries() {
		sets.System = append(sets.System, resilio.NewFolder(cfg, entry.Name, "", entry.Secret))
	}

	denied := cfg.DeniedIDs()

	sets.Deny = append(sets.Deny, discarded...)

	for _, f := range catalog {
		if _, ok := denied[f.ID]; ok {
			sets.Deny = append(sets.Deny, f)
		} else {
			sets.Allow = append(sets.Allow, f)
		}
	}

	return sets
}

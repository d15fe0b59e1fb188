// Package resilio talks to the Resilio Sync HTTP control API.
package resilio

import (
	"github.com/eti-lan/peti-sync/internal/config"
)

// Folder is one shareable unit known to the sync service. It is a pure
// value: all fields are fixed at construction and a Folder may be read
// from any number of concurrent workers. Identity is by ID.
type Folder struct {
	// Name is the display label, used only for logging.
	Name string

	// ID is the stable identifier. It doubles as the remote directory
	// leaf and the local mirror directory name under the sync root.
	ID string

	// Secret is the folder's share key. May be empty, which changes the
	// request shape (the secret query parameter is omitted entirely).
	Secret string
}

// NewFolder builds a Folder from the given parts. An empty id defaults
// to the name. An empty secret is resolved from the static folder table
// in cfg; a name absent from the table yields an empty secret rather
// than an error.
func NewFolder(cfg *config.Config, name, id, secret string) Folder {
	if id == "" {
		id = name
	}

	if secret == "" {
		secret = cfg.Folders.Secret(name)
	}

	return Folder{Name: name, ID: id, Secret: secret}
}

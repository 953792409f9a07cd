//go:build !cgo

package sources

import "errors"

func openKuzu(string) (Store, error) {
	return nil, errors.New("sources: kuzu backend requires a cgo build; use sources.graph: memory")
}

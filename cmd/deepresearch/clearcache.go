package main

import (
	"fmt"

	"github.com/dusk-indust/deepresearch/internal/cache"
)

func runClearCache(args []string) error {
	var flags cliFlags
	fs := newFlagSet("clear-cache", &flags)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return err
	}
	n, err := c.Clear()
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d cached search results from %s\n", n, c.Dir())
	return nil
}

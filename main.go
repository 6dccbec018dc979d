// Package main is the entry point for the shelfplay application.
package main

import (
	"github.com/samber/lo"

	"github.com/shelfplay-cli/shelfplay/cmd"
	"github.com/shelfplay-cli/shelfplay/config"
	"github.com/shelfplay-cli/shelfplay/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}

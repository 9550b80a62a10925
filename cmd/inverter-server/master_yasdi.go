//go:build yasdi

package main

import (
	"inverter/pkg/drivers/yasdi"
	"inverter/pkg/inverter"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
)

func newMaster(c *cli.Context, db *bolt.DB, logger log.FieldLogger) (inverter.Master, error) {
	if c.IsSet("plant") {
		logger.Warn("Ignoring plant description, using the YASDI library")
	}
	return yasdi.New(logger), nil
}

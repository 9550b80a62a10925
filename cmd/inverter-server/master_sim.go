//go:build !yasdi

package main

import (
	"inverter/pkg/drivers/simulator"
	"inverter/pkg/inverter"

	log "github.com/sirupsen/logrus"
	cli "github.com/urfave/cli/v2"
	bolt "go.etcd.io/bbolt"
)

func newMaster(c *cli.Context, db *bolt.DB, logger log.FieldLogger) (inverter.Master, error) {
	plant := simulator.DefaultPlant
	if path := c.String("plant"); path != "" {
		var err error
		if plant, err = simulator.LoadPlant(path); err != nil {
			return nil, err
		}
	}

	sim, err := simulator.New(plant, db, logger)
	if err != nil {
		return nil, err
	}

	logger.Infof("Using simulated master with %d devices", len(plant.Devices))
	return sim, nil
}

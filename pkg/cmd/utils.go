package cmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/c9s/hawkes/pkg/config"
	"github.com/c9s/hawkes/pkg/dataset"
	"github.com/c9s/hawkes/pkg/hawkes"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile := viper.GetString("config")
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load config %s", configFile)
	}

	if cmd.Flags().Lookup("decay") != nil {
		if decay, err := cmd.Flags().GetFloat64("decay"); err != nil {
			return nil, err
		} else if decay > 0 {
			cfg.Model.Decay = decay
		}

		if threads, err := cmd.Flags().GetInt("threads"); err != nil {
			return nil, err
		} else if threads > 0 {
			cfg.Model.NumThreads = threads
		}

		if dataPath, err := cmd.Flags().GetString("data"); err != nil {
			return nil, err
		} else if dataPath != "" {
			if cfg.Data == nil {
				cfg.Data = &config.DataConfig{}
			}
			cfg.Data.Path = dataPath
		}
	}

	return cfg, nil
}

// loadModel builds the model from the config and attaches the dataset to it.
func loadModel(cmd *cobra.Command) (*config.Config, *hawkes.Model, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Data == nil || cfg.Data.Path == "" {
		return nil, nil, errors.New("no dataset given, set data.path or use --data")
	}

	ds, err := dataset.Load(cfg.Data.Path)
	if err != nil {
		return nil, nil, err
	}

	endTimes := ds.EndTimes
	if len(cfg.Data.EndTimes) > 0 {
		endTimes = cfg.Data.EndTimes
	}

	model, err := hawkes.NewModelFromConfig(cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	if err := model.SetData(ds.Realizations, endTimes); err != nil {
		return nil, nil, err
	}

	log.Infof("loaded %d realizations of %d nodes with %d jumps from %s",
		model.NumRealizations(), model.NumNodes(), model.NumJumps(), cfg.Data.Path)
	return cfg, model, nil
}

package config

import (
	"errors"
	"fmt"

	"github.com/raykavin/hedgerun/pkg/core"
	"github.com/raykavin/hedgerun/pkg/storage"
	"github.com/spf13/viper"
)

// Seed is a file of profiles, accounts and monitor configurations
type Seed struct {
	Profiles []storage.Profile       `mapstructure:"profiles"`
	Accounts []storage.AccountRecord `mapstructure:"accounts"`
	Configs  []core.MonitorConfig    `mapstructure:"configs"`
}

// LoadSeed reads a seed file in any format viper understands (YAML, JSON, TOML)
func LoadSeed(path string) (*Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read seed %s: %w", path, err)
	}

	seed := &Seed{}
	if err := v.Unmarshal(seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed %s: %w", path, err)
	}

	return seed, nil
}

// Import writes the seed into the store. Every record is attempted; the returned
// error joins the records that failed.
func (s *Seed) Import(store *storage.Store) (int, error) {
	var (
		imported int
		errs     []error
	)

	for _, profile := range s.Profiles {
		if err := store.SaveProfile(profile); err != nil {
			errs = append(errs, fmt.Errorf("profile %s: %w", profile.Name, err))
			continue
		}
		imported++
	}

	for _, account := range s.Accounts {
		if err := store.SaveAccount(account); err != nil {
			errs = append(errs, fmt.Errorf("account %s: %w", account.ID, err))
			continue
		}
		imported++
	}

	for _, cfg := range s.Configs {
		if err := store.SaveConfig(cfg); err != nil {
			errs = append(errs, fmt.Errorf("config %s: %w", cfg.Name(), err))
			continue
		}
		imported++
	}

	return imported, errors.Join(errs...)
}

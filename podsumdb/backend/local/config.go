package local

import (
	"flag"
)

type Config struct {
	Path string `yaml:"path"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Path, prefix+"local.path", "", "path to store summaries at.")
}

func (cfg *Config) PathMatches(other *Config) bool {
	return cfg.Path == other.Path
}

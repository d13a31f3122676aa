package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// A fileConfig is the optional YAML config file. Pointer fields distinguish
// absent keys from zero values.
type fileConfig struct {
	GroupSize  *int    `yaml:"group_size"`
	MaxGap     *uint   `yaml:"max_gap"`
	ResetSlack *uint   `yaml:"reset_slack"`
	SnapLen    *int    `yaml:"snaplen"`
	HTTP       *string `yaml:"http"`
	Out        *string `yaml:"out"`
	Summary    *bool   `yaml:"summary"`
	LogAll     *bool   `yaml:"log_all"`
}

// options are the flag variables a config file may override.
type options struct {
	httpAddr   *string
	out        *string
	summary    *bool
	maxGap     *uint
	resetSlack *uint
	snapLen    *int
	logAll     *bool
}

func loadConfig(path string) (c *fileConfig, err error) {
	var b []byte
	if b, err = os.ReadFile(path); err != nil {
		return
	}
	c = &fileConfig{}
	if err = yaml.Unmarshal(b, c); err != nil {
		c = nil
	}
	return
}

// apply copies file values over flag defaults. Flags given explicitly on
// the command line (named in set) win over the file.
func (c *fileConfig) apply(set map[string]bool, o *options) {
	if c.HTTP != nil && !set["http"] {
		*o.httpAddr = *c.HTTP
	}
	if c.Out != nil && !set["out"] {
		*o.out = *c.Out
	}
	if c.Summary != nil && !set["summary"] {
		*o.summary = *c.Summary
	}
	if c.MaxGap != nil && !set["max-gap"] {
		*o.maxGap = *c.MaxGap
	}
	if c.ResetSlack != nil && !set["reset-slack"] {
		*o.resetSlack = *c.ResetSlack
	}
	if c.SnapLen != nil && !set["snaplen"] {
		*o.snapLen = *c.SnapLen
	}
	if c.LogAll != nil && !set["log-all"] {
		*o.logAll = *c.LogAll
	}
}

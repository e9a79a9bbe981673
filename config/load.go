package config

import (
	"fmt"
	"io/ioutil"

	"github.com/hashicorp/hcl"
)

// Load reads an HCL config file and applies it to the registered variables.
// Variables already set from the command line keep their values.
func (c *Config) Load(configFile string) error {
	b, err := ioutil.ReadFile(configFile)
	if err != nil {
		return err
	}
	return c.load(b)
}

func (c *Config) load(b []byte) error {
	var cfg map[string]interface{}

	err := hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	for name, val := range cfg {
		cv, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("config: %s is not a config variable", name)
		}

		if cv.by == byDefault {
			err := cv.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("config: %s: %s", cv.name, err)
			}
			cv.by = byConfig
		}
	}

	return nil
}

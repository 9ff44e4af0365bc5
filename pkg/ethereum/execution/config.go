package execution

import "errors"

type Config struct {
	// The name of the execution node
	Name string `yaml:"name"`
	// The address of the execution node
	NodeAddress string `yaml:"nodeAddress"`
	// Custom headers sent with every request
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
	// Block tag used for eth_getCode
	CodeBlock string `yaml:"codeBlock" default:"latest"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	if c.NodeAddress == "" {
		return errors.New("nodeAddress is required")
	}

	return nil
}

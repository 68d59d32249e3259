package lifecycle

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	AdminSecret string
	HashCost    int
}

func DefaultConfig() *Config {
	return &Config{
		HashCost: bcrypt.DefaultCost,
	}
}

func (c *Config) Validate() error {
	if c.AdminSecret == "" {
		return fmt.Errorf("admin secret is required")
	}
	if c.HashCost < bcrypt.MinCost || c.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("hash cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

package util

import (
	"fmt"
	"os"
)

const SecretEnvName = "MANGAFEDI_SECRET"

// EnvSecret reads the process-wide key encryption secret from the environment
// on every call. It satisfies keys.SecretSource.
type EnvSecret struct {
	Name string
}

func (e EnvSecret) Secret() ([]byte, error) {
	name := e.Name
	if name == "" {
		name = SecretEnvName
	}
	v := os.Getenv(name)
	if len(v) < 32 {
		return nil, fmt.Errorf("%s must be set to at least 32 characters", name)
	}
	return []byte(v), nil
}

// StaticSecret is a fixed secret, used by tests and tooling.
type StaticSecret []byte

func (s StaticSecret) Secret() ([]byte, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("static secret is empty")
	}
	return []byte(s), nil
}

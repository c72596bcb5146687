package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Loader struct {
	filePath string
	envFiles []string
}

// NewLoader reads filePath after loading the optional dotenv files, which never
// override variables already present in the environment.
func NewLoader(filePath string, envFiles ...string) *Loader {
	return &Loader{filePath: filePath, envFiles: envFiles}
}

func (c *Loader) Load(cfg any) error {
	for _, envFile := range c.envFiles {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	yamlData, err := os.ReadFile(c.filePath)
	if err != nil {
		return err
	}

	yamlString := os.ExpandEnv(string(yamlData))

	decoder := yaml.NewDecoder(strings.NewReader(yamlString))
	decoder.KnownFields(true)

	decodeErr := decoder.Decode(cfg)
	validate := validator.New(validator.WithRequiredStructEnabled())
	err = validate.Struct(cfg)

	if decodeErr != nil && err != nil {
		return fmt.Errorf("%w\n%w", err, decodeErr)
	}
	if decodeErr != nil {
		return decodeErr
	}
	return err
}

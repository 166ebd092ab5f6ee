package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultFileName         = "/.env"
	defaultOverrideFileName = "/.local.env"
)

type logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// EnvLoader resolves keys from the process environment after the .env files have been loaded into it.
type EnvLoader struct {
	logger logger
}

// NewEnvFile loads <configFolder>/.env and then the APP_ENV specific override file. Variables that were already
// set in the process environment before loading keep their values.
func NewEnvFile(configFolder string, logger logger) Config {
	conf := &EnvLoader{logger: logger}
	conf.read(configFolder)

	return conf
}

func (e *EnvLoader) read(folder string) {
	var (
		defaultFile  = folder + defaultFileName
		overrideFile = folder + defaultOverrideFileName
		env          = e.Get("APP_ENV")
	)

	initialEnv := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			initialEnv[k] = v
		}
	}

	err := godotenv.Load(defaultFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warnf("failed to load config from file: %v, err: %v", defaultFile, err)
		}
	} else {
		e.logger.Debugf("loaded config from file: %v", defaultFile)
	}

	if env != "" {
		overrideFile = folder + "/." + env + ".env"
	}

	err = godotenv.Overload(overrideFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			e.logger.Warnf("failed to load config from file: %v, err: %v", overrideFile, err)
		}
	} else {
		e.logger.Infof("loaded config from file: %v", overrideFile)
	}

	for k, v := range initialEnv {
		_ = os.Setenv(k, v)
	}
}

func (*EnvLoader) Get(key string) string {
	return os.Getenv(key)
}

func (*EnvLoader) GetOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}

	return defaultValue
}

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mistifyio/kelpie"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// config is the daemon configuration. Values come from flags, KELPIE_*
// environment variables (a .env file is loaded first) and an optional
// kelpied.yaml, in that order of precedence.
type config struct {
	Port            uint                   `mapstructure:"port" validate:"required,lte=65535"`
	KV              string                 `mapstructure:"kv" validate:"omitempty,uri"`
	LogLevel        string                 `mapstructure:"log-level" validate:"required,oneof=debug info warn warning error fatal panic"`
	Statsd          string                 `mapstructure:"statsd" validate:"omitempty,hostname_port"`
	ComputeTimeout  time.Duration          `mapstructure:"compute-timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration          `mapstructure:"shutdown-timeout" validate:"gt=0"`
	Computes        []kelpie.ComputeConfig `mapstructure:"computes" validate:"dive"`
}

func loadConfig(args []string) (*config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("kelpied", flag.ContinueOnError)
	fs.UintP("port", "p", 18000, "listen port")
	fs.StringP("kv", "k", "", "kv store url, e.g. badger:///var/lib/kelpie or consul://localhost:8500")
	fs.StringP("log-level", "l", "warn", "log level")
	fs.StringP("statsd", "s", "", "statsd address")
	fs.Duration("compute-timeout", kelpie.DefaultComputeTimeout, "timeout for requests to computes that do not set one")
	fs.Duration("shutdown-timeout", 5*time.Second, "time allowed for in-flight requests on shutdown")
	fs.StringP("config", "c", "", "config file (default ./kelpied.yaml or /etc/kelpie/kelpied.yaml)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix("KELPIE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("kelpied")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/kelpie")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config file: %w", err)
		}
	}

	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}
	for i := range c.Computes {
		if c.Computes[i].Timeout == 0 {
			c.Computes[i].Timeout = c.ComputeTimeout
		}
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %s", validationMessage(err))
	}
	return &c, nil
}

package config

import (
	"log"

	"github.com/spf13/viper"
)

type Server struct {
	Port string `mapstructure:"port"`
}

type Gateway struct {
	URL       string `mapstructure:"url"`
	TimeoutMs int    `mapstructure:"timeout-ms"`
}

type Checkout struct {
	Provider string `mapstructure:"provider"`
}

type Tokenizer struct {
	MinDelayMs int `mapstructure:"min-delay-ms"`
	MaxDelayMs int `mapstructure:"max-delay-ms"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Server    Server    `mapstructure:"server"`
	Gateway   Gateway   `mapstructure:"gateway"`
	Checkout  Checkout  `mapstructure:"checkout"`
	Tokenizer Tokenizer `mapstructure:"tokenizer"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Logs      Logs      `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}

// Copyright (C) 2025 ShopGraph Labs
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the assistant service configuration from an optional
// YAML file with environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	// Server settings.
	ListenAddr string `yaml:"listen_addr" validate:"required"`

	// SessionDir is the Badger session store directory. Empty selects the
	// in-memory store.
	SessionDir string `yaml:"session_dir"`

	// Weaviate connection.
	WeaviateHost   string `yaml:"weaviate_host" validate:"required"`
	WeaviateScheme string `yaml:"weaviate_scheme" validate:"oneof=http https"`

	// LLM call deadlines per pipeline stage.
	ClassifyTimeout time.Duration `yaml:"classify_timeout" validate:"gt=0"`
	ExtractTimeout  time.Duration `yaml:"extract_timeout" validate:"gt=0"`
	ResolveTimeout  time.Duration `yaml:"resolve_timeout" validate:"gt=0"`
	RankTimeout     time.Duration `yaml:"rank_timeout" validate:"gt=0"`
	AnswerTimeout   time.Duration `yaml:"answer_timeout" validate:"gt=0"`
	SearchTimeout   time.Duration `yaml:"search_timeout" validate:"gt=0"`

	// Retrieval tuning.
	SubcategoryLimit     int     `yaml:"subcategory_limit" validate:"gt=0"`
	SubcategoryThreshold float64 `yaml:"subcategory_threshold" validate:"gte=0,lte=1"`
	RetrieveLimit        int     `yaml:"retrieve_limit" validate:"gt=0"`
	RetrieveThreshold    float64 `yaml:"retrieve_threshold" validate:"gte=0,lte=1"`
	RerankLimit          int     `yaml:"rerank_limit" validate:"gt=0"`

	// Recommendation tuning.
	RecommendSubcategoryLimit int `yaml:"recommend_subcategory_limit" validate:"gt=0"`
	UseCaseLimit              int `yaml:"usecase_limit" validate:"gt=0"`
	UseCaseRerankLimit        int `yaml:"usecase_rerank_limit" validate:"gt=0"`
	KeywordLimit              int `yaml:"keyword_limit" validate:"gt=0"`
	MaxRecommendations        int `yaml:"max_recommendations" validate:"gt=0"`

	// Tracing.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the development defaults.
func Default() Config {
	return Config{
		ListenAddr:                ":8080",
		WeaviateHost:              "localhost:8081",
		WeaviateScheme:            "http",
		ClassifyTimeout:           15 * time.Second,
		ExtractTimeout:            20 * time.Second,
		ResolveTimeout:            15 * time.Second,
		RankTimeout:               45 * time.Second,
		AnswerTimeout:             45 * time.Second,
		SearchTimeout:             10 * time.Second,
		SubcategoryLimit:          3,
		SubcategoryThreshold:      0.9,
		RetrieveLimit:             20,
		RetrieveThreshold:         0.9,
		RerankLimit:               10,
		RecommendSubcategoryLimit: 2,
		UseCaseLimit:              20,
		UseCaseRerankLimit:        5,
		KeywordLimit:              5,
		MaxRecommendations:        10,
	}
}

// Load reads the config file at path (if non-empty), applies env overrides
// and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the config for usability.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnvString("LISTEN_ADDR", c.ListenAddr)
	c.SessionDir = getEnvString("SESSION_DIR", c.SessionDir)
	c.WeaviateHost = getEnvString("WEAVIATE_HOST", c.WeaviateHost)
	c.WeaviateScheme = getEnvString("WEAVIATE_SCHEME", c.WeaviateScheme)
	c.OTLPEndpoint = getEnvString("OTLP_ENDPOINT", c.OTLPEndpoint)
	c.RetrieveLimit = getEnvInt("RETRIEVE_LIMIT", c.RetrieveLimit)
	c.RerankLimit = getEnvInt("RERANK_LIMIT", c.RerankLimit)
	c.MaxRecommendations = getEnvInt("MAX_RECOMMENDATIONS", c.MaxRecommendations)
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// Package storage reads raw source tables from and writes flattened tables to
// object storage
package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrBucketRequired is returned when no bucket is configured
	ErrBucketRequired = errors.New("storage bucket is required")
	// ErrObjectNotFound is returned when a key does not exist
	ErrObjectNotFound = errors.New("object not found")
)

// DefaultKeyTemplate stores each output as <outputDir>/<name>/<name><YYYYMMDD>.csv
const DefaultKeyTemplate = "{{ .OutputDir }}/{{ .Name }}/{{ .Name }}{{ .Stamp }}.csv"

// Config holds object storage configuration
type Config struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region" default:"us-east-1"`
	// Endpoint points the client at an S3 compatible service such as MinIO
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`

	// DataPrefix limits which objects are loaded as raw tables
	DataPrefix string `yaml:"dataPrefix"`
	OutputDir  string `yaml:"outputDir" default:"output"`
	// KeyTemplate is a text/template with sprig functions over .OutputDir, .Name, .Date and .Stamp
	KeyTemplate string `yaml:"keyTemplate" default:"{{ .OutputDir }}/{{ .Name }}/{{ .Name }}{{ .Stamp }}.csv"`
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return ErrBucketRequired
	}

	if c.KeyTemplate == "" {
		c.KeyTemplate = DefaultKeyTemplate
	}

	if _, err := NewKeyRenderer(c.KeyTemplate, c.OutputDir); err != nil {
		return fmt.Errorf("invalid key template: %w", err)
	}

	return nil
}

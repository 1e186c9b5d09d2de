// Package archive keeps a copy of every exported bundle in an S3 bucket.
//
// Archiving is optional. When configured, the unit processor uploads each
// bundle after export and before import, so the bucket holds the exact
// configuration that was migrated.
package archive

import "strings"

// Config configures an S3 archive.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set. For S3-compatible stores (MinIO, Wasabi,
// moto) set Endpoint; path-style addressing is then forced.
type Config struct {
	// Bucket is the destination bucket (required).
	Bucket string

	// Prefix is prepended to every object key, e.g. "engines/2026-01/".
	Prefix string

	// Region defaults to us-east-1 for AWS when not resolved from the
	// environment or profile. No default is applied when Endpoint is set.
	Region string

	Endpoint string
	Profile  string

	AccessKeyID     string
	SecretAccessKey string

	ForcePathStyle bool
}

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return &ConfigError{Field: "Bucket", Message: "bucket name is required"}
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	if strings.HasPrefix(c.Prefix, "/") {
		return &ConfigError{Field: "Prefix", Message: "must not start with /"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "archive config: " + e.Field + ": " + e.Message
}

// resolveRegion applies the us-east-1 fallback after SDK resolution, for AWS
// endpoints only.
func resolveRegion(endpoint, sdkRegion string) string {
	if sdkRegion != "" {
		return sdkRegion
	}
	if endpoint == "" {
		return DefaultAWSRegion
	}
	return ""
}

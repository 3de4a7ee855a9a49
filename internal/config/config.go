// Package config holds the per-invocation configuration.
//
// A Config is assembled by the CLI from flags and environment variables and
// passed down by value; nothing in this package is global state.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Provider identifies an object-storage provider profile.
type Provider string

const (
	// ProviderAWS is AWS S3.
	ProviderAWS Provider = "aws"

	// ProviderDigitalOcean is a DigitalOcean Spaces endpoint speaking the
	// S3 wire protocol.
	ProviderDigitalOcean Provider = "digitalocean"
)

// StorageProfile describes one S3-compatible storage target.
//
// The credential set is immutable after construction and may be freely
// copied across workers.
type StorageProfile struct {
	Provider Provider
	Bucket   string
	Region   string

	// Endpoint is the base endpoint for S3-compatible providers
	// (e.g. https://sfo3.digitaloceanspaces.com). Empty for AWS.
	Endpoint string

	// Static credentials. When empty the AWS default credential chain is
	// used instead.
	AccessKeyID     string
	SecretAccessKey string
}

// Host returns the virtual-host-style hostname objects in this profile
// are served from.
func (p StorageProfile) Host() string {
	if p.Endpoint != "" {
		host := p.Endpoint
		if u, err := url.Parse(p.Endpoint); err == nil && u.Host != "" {
			host = u.Host
		}
		return p.Bucket + "." + host
	}
	return fmt.Sprintf("%s.s3.%s.amazonaws.com", p.Bucket, p.Region)
}

// ObjectURL returns the https URL of an object key within this profile.
// These URLs are what gets registered with the metadata service.
func (p StorageProfile) ObjectURL(key string) string {
	return "https://" + p.Host() + "/" + strings.TrimPrefix(key, "/")
}

// Config is the full configuration for one command invocation.
type Config struct {
	// APIBaseURL is the metadata service base URL.
	APIBaseURL string

	// AuthToken is the bearer token obtained externally. Its claims carry
	// the user id used as the top-level object-key prefix.
	AuthToken string

	// Storage is the profile uploads go to.
	Storage StorageProfile

	// Profiles are all known storage targets; downloads route to whichever
	// profile serves the file's registered URL.
	Profiles []StorageProfile
}

// ProfileForURL selects the storage profile that serves the given object
// URL, matching on hostname. Handles both virtual-host-style URLs
// (bucket in the hostname) and path-style URLs (bucket as the first path
// segment).
func (c *Config) ProfileForURL(rawURL string) (StorageProfile, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return StorageProfile{}, fmt.Errorf("invalid object URL %q: %w", rawURL, err)
	}

	for _, p := range c.Profiles {
		if strings.EqualFold(u.Host, p.Host()) {
			return p, nil
		}
		// Path-style: host is the bare endpoint, first path segment is
		// the bucket.
		if strings.HasPrefix(strings.TrimPrefix(u.Path, "/"), p.Bucket+"/") {
			if p.Endpoint != "" && strings.Contains(p.Endpoint, u.Host) {
				return p, nil
			}
			if p.Endpoint == "" && strings.HasSuffix(u.Host, ".amazonaws.com") {
				return p, nil
			}
		}
	}

	return StorageProfile{}, fmt.Errorf("no storage profile serves host %q", u.Host)
}

// Validate reports configuration errors before any network activity.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("metadata service URL is required")
	}
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid metadata service URL %q: %w", c.APIBaseURL, err)
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage bucket is required")
	}
	if c.Storage.Provider == ProviderAWS && c.Storage.Region == "" {
		return fmt.Errorf("storage region is required for AWS")
	}
	if c.Storage.Provider == ProviderDigitalOcean && c.Storage.Endpoint == "" {
		return fmt.Errorf("storage endpoint is required for DigitalOcean Spaces")
	}
	return nil
}

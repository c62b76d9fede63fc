package config

import "strings"

// SiteConfig holds site-specific configuration for a single host.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Depth overrides the crawl depth when --depth is not given explicitly.
	// nil means unset; 0 restricts the crawl to the starting page.
	Depth *int `yaml:"depth,omitempty"`

	// UserAgent overrides the default User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// IgnorePatterns are glob patterns on the link path; matching links are not followed.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are glob patterns on the link path. If set, only
	// matching links are followed.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`

	// ImageAttributes replaces the <img> attribute preference list.
	ImageAttributes []string `yaml:"imageAttributes,omitempty"`
}

// File represents the structure of the .imagecrawl configuration file.
type File struct {
	// Sites maps hosts to their site-specific configurations.
	// Keys are the host with optional port and no scheme (e.g. "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults applies to all sites unless overridden.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a host merged over the defaults.
// A lookup with the port stripped is tried when the exact host has no entry,
// and a leading "www." is ignored on both sides.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults
	site, ok := cf.lookup(host)
	if !ok {
		return result
	}

	if site.Cookie != "" {
		result.Cookie = site.Cookie
	}
	if site.Depth != nil {
		result.Depth = site.Depth
	}
	if site.UserAgent != "" {
		result.UserAgent = site.UserAgent
	}
	if len(site.Headers) > 0 {
		merged := make(map[string]string, len(result.Headers)+len(site.Headers))
		for k, v := range result.Headers {
			merged[k] = v
		}
		for k, v := range site.Headers {
			merged[k] = v
		}
		result.Headers = merged
	}
	if len(site.IgnorePatterns) > 0 {
		result.IgnorePatterns = site.IgnorePatterns
	}
	if len(site.FollowPatterns) > 0 {
		result.FollowPatterns = site.FollowPatterns
	}
	if len(site.ImageAttributes) > 0 {
		result.ImageAttributes = site.ImageAttributes
	}
	return result
}

func (cf *File) lookup(host string) (SiteConfig, bool) {
	candidates := []string{host}
	if i := strings.LastIndex(host, ":"); i > 0 && !strings.HasSuffix(host, "]") {
		candidates = append(candidates, host[:i])
	}
	for _, c := range candidates {
		if site, ok := cf.Sites[c]; ok {
			return site, true
		}
		bare := strings.TrimPrefix(c, "www.")
		for key, site := range cf.Sites {
			if strings.TrimPrefix(key, "www.") == bare {
				return site, true
			}
		}
	}
	return SiteConfig{}, false
}

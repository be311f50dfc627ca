package packaging

import "fmt"

// GenerateDefaultConfig produces the config.yml written on first install.
// Every value matches the built-in default, so the file documents the
// options without changing behaviour.
func GenerateDefaultConfig(dataDir string) string {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}
	return fmt.Sprintf(`# cloudflare-ufw-sync configuration

cloudflare:
  # Optional. The IP list endpoint is public; a key can also be supplied
  # through CLOUDFLARE_API_KEY in the environment file next to this config.
  api_key: ""
  ip_types: [v4, v6]

ufw:
  default_policy: deny
  port: 443
  proto: tcp
  comment: Cloudflare IP

sync:
  # Duration or seconds.
  interval: 24h
  retry_backoff: 60s
  enabled: true

logging:
  level: info
  file: ""

metrics:
  enabled: false
  listen: 127.0.0.1:9798

data_dir: %s
`, dataDir)
}

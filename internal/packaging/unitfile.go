package packaging

import (
	"fmt"
	"path/filepath"
	"strings"
)

// GenerateUnitFile produces the systemd unit for the sync daemon.
// It calls cfg.ApplyDefaults() to fill in zero-valued fields before generating the output.
func GenerateUnitFile(cfg InstallConfig) string {
	cfg.ApplyDefaults()

	configPath := filepath.Join(cfg.ConfigDir, ConfigFileName)
	envPath := filepath.Join(cfg.ConfigDir, EnvFileName)
	writable := append([]string{cfg.DataDir}, cfg.UFWStateDirs...)

	return fmt.Sprintf(`[Unit]
Description=Sync Cloudflare IP ranges into ufw
After=network-online.target ufw.service
Wants=network-online.target
StartLimitBurst=5
StartLimitIntervalSec=300

[Service]
Type=simple
ExecStart=%s daemon --config %s
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=30s
EnvironmentFile=-%s
CapabilityBoundingSet=CAP_NET_ADMIN CAP_NET_RAW
NoNewPrivileges=true
ProtectSystem=full
ProtectHome=true
PrivateTmp=true
ReadWritePaths=%s

[Install]
WantedBy=multi-user.target
`, cfg.BinaryPath, configPath, envPath, strings.Join(writable, " "))
}

// Package systemd renders the unit file for running accessgate serve as a
// hardened service and checks that an installed unit was not modified.
package systemd

import "fmt"

// UnitName is the installed unit file name.
const UnitName = "accessgate.service"

// InstalledUnitPath is where operators copy the generated unit.
var InstalledUnitPath = "/etc/systemd/system/" + UnitName

// ServiceTemplate returns the unit for `accessgate serve`. dataDir is the
// only writable path: it holds the database and the audit log.
func ServiceTemplate(binary, configPath, dataDir string) string {
	return fmt.Sprintf(`[Unit]
Description=accessgate access gateway
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
User=accessgate
Group=accessgate
ExecStart=%s serve --config %s
ExecReload=/bin/kill -HUP $MAINPID
Restart=on-failure
RestartSec=2

NoNewPrivileges=true
PrivateTmp=true
PrivateDevices=true
ProtectSystem=strict
ProtectHome=read-only
ProtectKernelTunables=true
ProtectKernelModules=true
ProtectControlGroups=true
RestrictNamespaces=true
RestrictSUIDSGID=true
LockPersonality=true
MemoryDenyWriteExecute=true
CapabilityBoundingSet=
ReadWritePaths=%s
UMask=0077

[Install]
WantedBy=multi-user.target
`, binary, configPath, dataDir)
}

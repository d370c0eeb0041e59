package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "root":
		return rootTemplate, nil
	case "peer":
		return peerTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const rootTemplate = `name = "root.local"
listen_ip = "127.0.0.1"
listen_port = 5000
admin_addr = "127.0.0.1:8080"
admin_token = ""
log_level = "info"
poll_interval = "200ms"
stale_after = "90s"
connect_timeout = "3s"
reply_timeout = "5s"
`

const peerTemplate = `name = "peer.local"
listen_ip = "127.0.0.1"
listen_port = 0
root_ip = "127.0.0.1"
root_port = 5000
admin_addr = "127.0.0.1:8081"
admin_token = ""
log_level = "info"
poll_interval = "200ms"
reunion_interval = "20s"
reunion_timeout = "40s"
register_attempts = 5
connect_timeout = "3s"
reply_timeout = "5s"
`

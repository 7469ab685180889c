package config

import (
	"fmt"
	"os"
)

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(simTemplate), 0o600)
}

const simTemplate = `[frame]
rows = 1024
cols = 1024
count = 100
virtual_channel = 0

[ring]
depth = 4

[fragment]
max_payload = 1400
timeout_ms = 2000

[impairment]
loss_rate = 0.0
reorder_rate = 0.0
corruption_rate = 0.0
min_delay_ms = 0
max_delay_ms = 0
seed = 1

[command]
secret = "change-me-shared-secret"
max_peers = 32
`

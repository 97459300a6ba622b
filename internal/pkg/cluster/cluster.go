package cluster

import (
	"os"
	"strconv"
	"strings"
)

// EnvInstanceID numbers replicas that share one set of ledger shards. Instance 0 is primary.
const EnvInstanceID = "PRESENCE_INSTANCE_ID"

var instanceEnvKeys = []string{EnvInstanceID, "NODE_APP_INSTANCE", "pm_id", "INSTANCE_ID"}

// InstanceID reports the replica index and whether one was set.
func InstanceID() (int, bool) {
	for _, key := range instanceEnvKeys {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			return -1, true
		}
		return v, true
	}
	return 0, false
}

// ShouldRunCron keeps scheduled jobs single-run across replicas.
func ShouldRunCron() bool {
	id, _ := InstanceID()
	return id == 0
}

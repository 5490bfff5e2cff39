package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"strconv"
	"sync"
)

var instanceID = sync.OnceValue(GenerateInstanceID)

// GenerateInstanceID returns a unique string for this process (hostname+pid+random)
func GenerateInstanceID() string {
	host, _ := os.Hostname()
	pid := os.Getpid()
	rnd := make([]byte, 4)
	_, _ = rand.Read(rnd)
	return host + "-" + strconv.Itoa(pid) + "-" + hex.EncodeToString(rnd)
}

// InstanceID returns the id of the running process. It is stable for the process
// lifetime and is reported as service.instance.id and in the download history.
func InstanceID() string {
	return instanceID()
}

package utils

import (
	"github.com/denisbrodbeck/machineid"
	"github.com/google/uuid"
)

// HWID is a stable, app-scoped identifier for this device. It is sent with
// every backend request so the server can tell which client produced a
// mutation. Falls back to a random id when the platform has no machine id.
var HWID = deviceID()

func deviceID() string {
	id, err := machineid.ProtectedID("docbox")
	if err != nil {
		return uuid.NewString()
	}
	return id
}

package relay

import "github.com/google/uuid"

func newPeerID() string {
	return uuid.NewString()
}

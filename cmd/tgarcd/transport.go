package main

import (
	"errors"

	"github.com/pcruz7/tgarc/internal/tg"
)

// transportFactory builds the platform transport for an account. Wire
// implementations register themselves here from build-tagged files; the
// plain build refuses to start rather than run a daemon that cannot reach
// the platform.
var transportFactory func(account string) (tg.RemoteClient, error)

func newRemoteClient(account string) (tg.RemoteClient, error) {
	if transportFactory == nil {
		return nil, errors.New("no platform transport compiled into this build")
	}
	return transportFactory(account)
}

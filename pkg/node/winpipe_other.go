//go:build !windows

package node

import (
	"fmt"

	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mux"
)

func newWinPipeTransport(mux.Options) (transport.Transport, error) {
	return nil, fmt.Errorf("winpipe transport is not supported on this platform")
}

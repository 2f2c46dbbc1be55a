//go:build windows

package node

import (
	"github.com/zsl99a/netz/pkg/transport"
	"github.com/zsl99a/netz/pkg/transport/mux"
	"github.com/zsl99a/netz/pkg/transport/winpipe"
)

func newWinPipeTransport(opts mux.Options) (transport.Transport, error) {
	return winpipe.New(opts), nil
}

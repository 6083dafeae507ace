package main

import (
	"fmt"
	"net"
	"os"

	"netsim/internal/netsimconfig"
)

// listenOnPort binds the HTTP listener, letting the OS choose a port when
// port is 0 (spec.md §6: discovery exists precisely so clients can learn
// the ephemeral port back).
func listenOnPort(port int) (net.Listener, int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, 0, err
	}
	return listener, listener.Addr().(*net.TCPAddr).Port, nil
}

// writeDiscoveryFile writes the netsim.ini/netsim_<instance>.ini file a
// client uses to find this daemon (spec.md §6).
func writeDiscoveryFile(instance string, webPort int) error {
	f, err := os.Create(netsimconfig.DiscoveryPath(instance))
	if err != nil {
		return err
	}
	defer f.Close()
	return netsimconfig.WriteDiscovery(f, "", webPort)
}

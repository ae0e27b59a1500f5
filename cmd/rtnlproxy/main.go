// Command rtnlproxy wires the codec and policy layers together into a
// standalone process: it is a demo harness, not a full netlink proxy
// daemon, since the datagram-socket transport itself is an external
// collaborator this repo only interposes on (see package proxy).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"

	"github.com/m-lab/rtnl-proxy/backend"
	"github.com/m-lab/rtnl-proxy/proxy"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	ancient  = flag.Bool("ancient", false, "Emulate bonding/bridging over sysfs and external tools instead of forwarding to the kernel")
	netnsDir = flag.String("netns-dir", "/var/run/netns", "Directory holding named network namespace files")
	promAddr = flag.String("prom", ":9090", "Prometheus metrics export address and port")

	ctx, cancel = context.WithCancel(context.Background())
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	host := backend.NewDefaultHost()
	p := &proxy.Proxy{
		Host:        host,
		Transport:   netlinkTransport{},
		AncientMode: *ancient,
		NetnsRunDir: *netnsDir,
	}

	promSrv := prometheusx.MustStartPrometheus(*promAddr)
	defer promSrv.Shutdown(ctx)
	log.Printf("rtnlproxy: serving metrics on %s, ancient=%v, netns-dir=%s", *promAddr, *ancient, *netnsDir)

	loopErr := make(chan error, 1)
	go func() { loopErr <- runReceiveLoop(p) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sig:
		log.Printf("rtnlproxy: received %v, shutting down", sig)
	case err := <-loopErr:
		log.Printf("rtnlproxy: receive loop exited: %v", err)
	}
	cancel()
}

package main

import (
	"fmt"
	"log"

	"golang.org/x/sys/unix"

	"github.com/m-lab/rtnl-proxy/proxy"
)

// runReceiveLoop subscribes to RTMGRP_LINK multicast notifications on a
// NETLINK_ROUTE socket and feeds each message's ifinfomsg-plus-attributes
// payload through p's matching proxy method, logging the resulting verdict.
// The full request/response control-plane socket is out of scope for this
// repo (see package proxy's doc comment), but a notification listener still
// gives the demo binary a live, non-discarded caller for
// NewLink/DelLink/SetLink rather than leaving p unused after construction.
func runReceiveLoop(p *proxy.Proxy) error {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_ROUTE)
	if err != nil {
		return fmt.Errorf("rtnlproxy: opening netlink socket: %w", err)
	}
	defer unix.Close(fd)

	addr := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: unix.RTMGRP_LINK}
	if err := unix.Bind(fd, addr); err != nil {
		return fmt.Errorf("rtnlproxy: binding netlink socket: %w", err)
	}

	buf := make([]byte, 8192)
	for {
		n, _, err := unix.Recvfrom(fd, buf, 0)
		if err != nil {
			return fmt.Errorf("rtnlproxy: reading netlink socket: %w", err)
		}
		msgs, err := unix.ParseNetlinkMessage(buf[:n])
		if err != nil {
			log.Printf("rtnlproxy: parsing netlink message: %v", err)
			continue
		}
		for _, m := range msgs {
			dispatch(p, m)
		}
	}
}

// dispatch routes one parsed netlink message to the proxy operation that
// owns its message type, then logs whether the caller still needs to
// forward the bytes or whether the proxy fully serviced it.
func dispatch(p *proxy.Proxy, m unix.NetlinkMessage) {
	var (
		res proxy.Result
		err error
		op  string
	)
	switch m.Header.Type {
	case unix.RTM_NEWLINK:
		op = "newlink"
		res, err = p.NewLink(m.Data)
	case unix.RTM_DELLINK:
		op = "dellink"
		res, err = p.DelLink(m.Data)
	case unix.RTM_SETLINK:
		op = "setlink"
		res, err = p.SetLink(m.Data)
	default:
		return
	}
	if err != nil {
		log.Printf("rtnlproxy: %s: %v", op, err)
		return
	}
	if res.Verdict == proxy.Forward {
		log.Printf("rtnlproxy: %s: forward %d bytes", op, len(res.Data))
	} else {
		log.Printf("rtnlproxy: %s: serviced locally", op)
	}
}

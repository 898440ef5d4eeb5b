// Package netfd wraps the raw socket calls the relay needs: a non-blocking
// listening socket and the accepted client descriptors.
package netfd

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

var (
	// ErrSocket - the transport could not allocate a socket.
	ErrSocket = errors.New("netfd: socket creation failed")
	// ErrBind - the address could not be bound.
	ErrBind = errors.New("netfd: bind failed")
	// ErrListen - the backlog could not be applied.
	ErrListen = errors.New("netfd: listen failed")
	// ErrAccept - a pending connection could not be accepted.
	ErrAccept = errors.New("netfd: accept failed")
)

type Listener struct {
	Fd int
}

// Listen creates a TCP socket bound to host:port and starts listening with the
// given backlog. An empty host binds to every IPv4 interface.
func Listen(host string, port, backlog int) (l *Listener, err error) {
	sa, family, err := sockaddr(host, port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}

	fd, err := unix.Socket(
		family,
		(unix.SOCK_STREAM | unix.SOCK_CLOEXEC | unix.SOCK_NONBLOCK),
		unix.IPPROTO_TCP,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}
	l = &Listener{Fd: fd}

	unix.SetsockoptInt(l.Fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)

	if err = unix.Bind(l.Fd, sa); err != nil {
		l.Close()
		return nil, fmt.Errorf("%w: %w", ErrBind, err)
	}

	if err = unix.Listen(l.Fd, backlog); err != nil {
		l.Close()
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}

	return l, nil
}

func sockaddr(host string, port int) (unix.Sockaddr, int, error) {
	if host == "" {
		return &unix.SockaddrInet4{Port: port}, unix.AF_INET, nil
	}

	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, 0, err
	}

	if ip4 := addr.IP.To4(); ip4 != nil {
		return &unix.SockaddrInet4{Port: addr.Port, Addr: [4]byte(ip4)}, unix.AF_INET, nil
	}

	var zoneid uint32
	if iface, err := net.InterfaceByName(addr.Zone); err == nil {
		zoneid = uint32(iface.Index)
	}

	return &unix.SockaddrInet6{
		Port:   addr.Port,
		Addr:   [16]byte(addr.IP.To16()),
		ZoneId: zoneid,
	}, unix.AF_INET6, nil
}

// Port reports the port the socket is bound to.
func (l *Listener) Port() (int, error) {
	sa, err := unix.Getsockname(l.Fd)
	if err != nil {
		return 0, err
	}

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return sa.Port, nil
	case *unix.SockaddrInet6:
		return sa.Port, nil
	}
	return 0, fmt.Errorf("netfd: unexpected socket address %T", sa)
}

func (l *Listener) Close() error {
	return unix.Close(l.Fd)
}

// Accept takes one pending connection off the queue. The returned descriptor
// is non-blocking and close-on-exec.
func (l *Listener) Accept() (nfd int, addr string, err error) {
	nfd, sa, err := unix.Accept(l.Fd)
	if err != nil {
		return -1, "", fmt.Errorf("%w: %w", ErrAccept, err)
	}

	if err = unix.SetNonblock(nfd, true); err != nil {
		unix.Close(nfd)
		return -1, "", fmt.Errorf("%w: %w", ErrAccept, err)
	}
	unix.CloseOnExec(nfd)

	return nfd, AddrString(sa), nil
}

// AddrString renders a socket address as host:port.
func AddrString(sa unix.Sockaddr) string {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(sa.Addr[:]).String(), strconv.Itoa(sa.Port))
	case *unix.SockaddrUnix:
		return sa.Name
	}
	return "unknown"
}

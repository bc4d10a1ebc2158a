package socket

import (
	"net"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/steploop/steploop/utils/errs"
)

// Listener exposes the raw, nonblocking descriptor of a net listener so
// it can be registered with the stepping loop.
type Listener struct {
	fd   int
	addr net.Addr
	ln   net.Listener
}

func (that *Listener) GetFd() int {
	return that.fd
}

func (that *Listener) Addr() net.Addr {
	return that.addr
}

func (that *Listener) Close() (err error) {
	if that.fd > 0 {
		err = unix.Close(that.fd)
		that.fd = -1
	}
	if that.ln != nil {
		if cerr := that.ln.Close(); err == nil {
			err = cerr
		}
		that.ln = nil
	}
	return
}

// ResolveFd dups the descriptor out of a stream listener. The dup is
// owned by the caller; the original listener stays valid.
func ResolveFd(ln net.Listener) (fd int, err error) {
	switch l := ln.(type) {
	case *net.TCPListener:
		file, ferr := l.File()
		if ferr != nil {
			return -1, ferr
		}
		return int(file.Fd()), nil
	case *net.UnixListener:
		file, ferr := l.File()
		if ferr != nil {
			return -1, ferr
		}
		return int(file.Fd()), nil
	default:
		return -1, errors.Wrapf(errs.ErrUnsupportedOp, "listener type %T", ln)
	}
}

func Listen(network, address string) (*Listener, error) {
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}
	fd, err := ResolveFd(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		ln.Close()
		return nil, err
	}
	return &Listener{fd: fd, addr: ln.Addr(), ln: ln}, nil
}

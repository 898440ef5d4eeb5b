package relay

import (
	"golang.org/x/sys/unix"
)

// handleReadable reads one chunk from the client at index i and relays it.
// A closed or failing connection is removed instead.
func (s *Server) handleReadable(i int) {
	c := s.reg.At(i)

	n, err := readChunk(c.Fd, s.buf[:len(s.buf)-1])
	switch {
	case err == unix.EAGAIN:
		return
	case err != nil:
		s.removeClient(i, err.Error())
		return
	case n == 0:
		s.removeClient(i, "closed by peer")
		return
	}

	payload := s.buf[:n]
	s.logger.Info("client data", "fd", c.Fd, "bytes", n, "data", string(payload))

	s.broadcast(payload)
}

// broadcast writes payload to every registered client, the sender included.
// A recipient whose write fails is removed and the cursor stays put, so the
// client shifted into its slot is still visited.
func (s *Server) broadcast(payload []byte) {
	i := 0
	for i < s.reg.Len() {
		c := s.reg.At(i)
		if err := writeAll(c.Fd, payload); err != nil {
			s.logger.Warn("write failed", "fd", c.Fd, "err", err)
			s.removeClient(i, err.Error())
			continue
		}
		i++
	}
}

func readChunk(fd int, buf []byte) (int, error) {
	for {
		n, err := unix.Read(fd, buf)
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

// writeAll keeps writing until payload is out. Would-block is an error: a
// slow reader is dropped, not waited for.
func writeAll(fd int, payload []byte) error {
	for len(payload) > 0 {
		n, err := unix.Write(fd, payload)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

package probe

import "github.com/alexisbouchez/emailcheck.go/internal/textproto"

// readLoop publishes reply lines onto s.lines until the connection fails or
// the session is closed. Read errors are not reported: the driver sees them
// only as a reply that never arrives. That includes a line longer than
// textproto.MaxReplyLineLen, which ends the loop like any other read error,
// so an over-long reply costs the driver its full reply timeout. The channel
// is never closed.
func (s *Session) readLoop() {
	defer close(s.readerDone)
	for {
		line, err := s.conn.ReadLine(textproto.MaxReplyLineLen)
		if err != nil {
			s.logger.Debug().Err(err).Msg("reader stopped")
			return
		}
		select {
		case s.lines <- line:
		case <-s.done:
			return
		}
	}
}

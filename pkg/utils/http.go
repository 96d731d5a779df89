package utils

import "io"

// DrainAndClose drains up to 1 MiB of a response body and closes it so the
// transport can reuse the connection. Bigger leftovers are cheaper to drop.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<20))
	return rc.Close()
}

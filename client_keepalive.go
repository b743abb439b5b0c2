package ftps

import "time"

// startKeepAlive starts a goroutine that sends NOOP commands
// if the connection has been idle for the configured idleTimeout.
func (c *Client) startKeepAlive() {
	if c.idleTimeout == 0 {
		return
	}

	c.quitChan = make(chan struct{})
	quit := c.quitChan

	// Tick at half the idle timeout so a NOOP lands before the server gives up
	ticker := time.NewTicker(c.idleTimeout / 2)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.keepAlive(); err != nil && c.closed.Load() {
					return
				}
			case <-quit:
				return
			}
		}
	}()
}

// keepAlive sends one NOOP if the control connection is idle. A command or
// a transfer holding the connection skips this round.
func (c *Client) keepAlive() error {
	if c.closed.Load() || !c.mu.TryLock() {
		return nil
	}
	defer c.mu.Unlock()

	c.stateMu.Lock()
	idle := c.activeDataConn == nil && time.Since(c.lastCommand) >= c.idleTimeout
	c.stateMu.Unlock()
	if !idle {
		return nil
	}

	c.logger.Debug().Msg("sending keep-alive NOOP")
	resp, err := c.sendLocked("NOOP", "NOOP")
	if err != nil {
		return err
	}
	if !resp.Is2xx() {
		return newProtocolError("NOOP", resp)
	}
	return nil
}

func (c *Client) stopKeepAlive() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if c.quitChan != nil {
		close(c.quitChan)
		c.quitChan = nil
	}
}

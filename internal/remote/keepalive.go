package remote

import (
	"context"
	"time"

	"github.com/markus-barta/webos-remote/internal/socket"
)

// keepalive pings conn every interval. A failed ping ends the loop quietly;
// the orchestrator treats any finished task as connection loss. With gated
// set and standby enabled, pings are skipped while no app is in the
// foreground so an idle device is not kept awake.
func (c *Client) keepalive(ctx context.Context, conn *socket.Conn, name string, gated bool) error {
	log := c.log.With().Str("socket", name).Logger()

	timer := time.NewTimer(c.opts.PingInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if gated && c.opts.Standby && c.agg.Snapshot().CurrentAppID == "" {
			timer.Reset(c.opts.PingInterval)
			continue
		}

		if err := conn.Ping(ctx, c.opts.ConnectTimeout); err != nil {
			if ctx.Err() == nil {
				log.Debug().Err(err).Msg("ping failed")
			}
			return nil
		}
		timer.Reset(c.opts.PingInterval)
	}
}

// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dsconn

import (
	"net"
	"time"

	"github.com/pkg/errors"
)

// keepaliveProbeInterval is fixed by spec.md §6: once keepalive is enabled
// with a positive idle time, the probe interval is always 1000ms.
const keepaliveProbeInterval = 1000 * time.Millisecond

// applySocketOptions sets the socket options spec.md §6 requires on connect:
// TCP_NODELAY, linger=0, and keepalive (enabled/disabled per config, with the
// OS-level idle time set via the platform's keepalive-values control when
// both enabled and idle>0).
func applySocketOptions(conn *net.TCPConn, cfg *Config) error {
	if err := conn.SetNoDelay(true); err != nil {
		return errors.Wrap(err, "dsconn: set TCP_NODELAY")
	}
	if err := conn.SetLinger(0); err != nil {
		return errors.Wrap(err, "dsconn: set linger")
	}
	if err := conn.SetKeepAlive(cfg.Keepalive); err != nil {
		return errors.Wrap(err, "dsconn: set keepalive")
	}
	if cfg.Keepalive && cfg.KeepaliveTime > 0 {
		if err := conn.SetKeepAliveConfig(net.KeepAliveConfig{
			Enable:   true,
			Idle:     cfg.KeepaliveTime,
			Interval: keepaliveProbeInterval,
		}); err != nil {
			return errors.Wrap(err, "dsconn: set keepalive idle time")
		}
	}
	return nil
}

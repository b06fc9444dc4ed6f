package transport

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/uu-controllers/schunkgui/ros"
)

// Replay publishes recorded messages in order, keeping their recorded spacing divided by speed. A
// speed of zero or less publishes back to back. It returns when every message was sent or ctx is
// done.
func Replay(ctx context.Context, clk clock.Clock, pub Publisher, msgs []ros.BagMessage, speed float64) error {
	if len(msgs) == 0 {
		return nil
	}
	start := msgs[0].Time
	began := clk.Now()
	for _, msg := range msgs {
		if speed > 0 {
			due := began.Add(time.Duration(float64(msg.Time.Sub(start)) / speed))
			if wait := due.Sub(clk.Now()); wait > 0 {
				timer := clk.Timer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
		if err := pub.Publish(ctx, msg.Topic, msg.Msg); err != nil {
			return err
		}
	}
	return nil
}

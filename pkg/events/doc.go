/*
Package events provides the runtime's observer bus.

A Broker fans runtime events (commits applied, facts asserted or
retracted, conflicts, dirty actions, queued stream events, flow
violations) out to subscribers over buffered channels. Delivery is
best-effort: a subscriber whose buffer is full misses the event rather
than blocking the runtime.

The broker is strictly an observation surface. Scheduler wake-ups ride
on direct replica subscriptions so dirty marking stays ordered with
commits; the broker exists for the CLI watch command, tests, and
external telemetry.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for event := range sub {
			fmt.Println(event.Type, event.Of)
		}
	}()
*/
package events

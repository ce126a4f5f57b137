/*
Package choreo coordinates multi-party workflows described by templates.

A template declares roles, typed slots and states linked by conditional
transitions. Loose documents (hand written or generated) are normalized into
canonical form, validated with every problem reported at once, and sealed.
Runs of a sealed template move from state to state as participants fill slots
and raise events, and as timeouts elapse.

# Concept

The Engine separates the template (what may happen) from the run (what has
happened). Every state visit is recorded as a RunState, so the history of a
run is never rewritten. Storage, locking and outbound delivery are ports:
runs can live in memory, Redis or SQLite, and several processes can share a
repository when a distributed locker is configured.

# Usage

	eng, err := choreo.New(choreo.WithRepository(store))
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Publish(ctx, templateYAML)
	if err != nil {
		log.Fatal(err) // *validator.Error lists every problem
	}

	run, err := eng.Start(ctx, res.Template.ID, participants)
	out, err := eng.Submit(ctx, machine.Submission{
		RunID: run.ID,
		Role:  "requester",
		Slot:  "address",
		Value: "221B Baker Street",
	})

Timeouts fire when a run is ticked; Sweeper ticks every in-progress run
periodically.
*/
package choreo

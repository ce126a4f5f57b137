/*
Package ports defines the driven ports (interfaces) of the coordination core.

These interfaces decouple run execution from persistence technology and from
outbound delivery, so the core can run against memory, Redis or SQLite and
hand participant-facing messages to any transport.

# Key Interfaces

  - Repository: durable storage for templates, runs and run-state visits.
  - MessageComposer: produces participant-facing text when a state is entered.
  - NotificationSender: delivers that text to a participant.
  - DistributedLocker: serializes access to a run across replicas.

The tests subpackage holds a reusable contract suite every Repository
implementation is expected to pass.
*/
package ports

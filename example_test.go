package choreo_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/choreo"
	"github.com/aretw0/choreo/pkg/domain"
	"github.com/aretw0/choreo/pkg/machine"
)

const teamDinner = `
name: Team Dinner
description: The organizer picks a venue and the guests confirm.
roles:
  Organizer:
    capabilities: [create, read, update, approve]
    maxParticipants: 1
  Guest:
    capabilities: [read, approve]
slots:
  - name: venue
    type: text
    required: true
    editable: [Organizer]
states:
  - name: Pick Venue
    phase: collect
    participants: [Organizer]
    requiredSlots: [venue]
    transitions: Confirm
  - name: Confirm
    phase: confirm
    participants: [Organizer, Guest]
`

func Example() {
	ctx := context.Background()
	eng, err := choreo.New()
	if err != nil {
		log.Fatal(err)
	}

	res, err := eng.Publish(ctx, []byte(teamDinner))
	if err != nil {
		log.Fatal(err)
	}

	run, err := eng.Start(ctx, res.Template.ID, []domain.Participant{
		{ID: "ann", Role: "organizer"},
		{ID: "bo", Role: "guest"},
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("started in", run.CurrentStateID)

	out, err := eng.Submit(ctx, machine.Submission{RunID: run.ID, Role: "organizer", Slot: "venue", Value: "Rooftop"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.From, "->", out.To)

	out, err = eng.Submit(ctx, machine.Submission{RunID: run.ID, Role: "guest", Event: domain.ConditionApproved})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(out.Run.Status)

	// Output:
	// started in pick_venue
	// pick_venue -> confirm
	// completed
}

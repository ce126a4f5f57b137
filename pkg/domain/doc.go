/*
Package domain contains the core data model of the coordination engine.

It defines coordination templates (phases, roles, states, slots and the
transitions between states) and the runtime entities that execute them
(runs, run states and participants). This package is kept pure and free of
external dependencies like I/O or persistence, following Hexagonal
Architecture principles.

# Key Entities

  - Template: An immutable, validated workflow definition.
  - Pattern: The five fixed phases (express, explore, commit, evidence, confirm).
  - Role, State, Slot: Who participates, the workflow steps, and the data collected.
  - Run: A live execution of a template.
  - RunState: A single visit to a state, holding the slot data captured during it.
*/
package domain

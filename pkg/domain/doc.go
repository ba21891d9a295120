/*
Package domain contains the core models of the Arbiter orchestration engine.

It defines the State Container threaded through every stage, the Partial
update each stage returns, and the Merge function that applies one to the
other. The package is kept pure and free of I/O so stages, routers and
stores can share it without pulling in infrastructure.

# Key Entities

  - State: the per-thread record (conversation history, query, routing, candidate analysis, final result).
  - Partial: the subset of fields a stage changed. History accumulates, everything else is last-write-wins.
  - Route: the closed set of routing decisions taken by Guardrail and Clarify.
  - Analysis: the structured output of the generative stage (Analysis Record).
  - FinalResult: the terminal payload, discriminated by Kind.
  - StageEvent: what the Event Emitter reports per stage transition.
*/
package domain

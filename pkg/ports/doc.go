/*
Package ports defines the driven ports (interfaces) for the Arbiter engine.

These interfaces decouple the orchestration core from its collaborators, so
the graph can run against real providers, stores and indexes in production
and against scripted fakes in tests.

# Key Interfaces

  - Generator: one generative call, free text or structured, optionally offering tools.
  - Retriever: ranked passage search plus identifier expansion.
  - RuleChecker: pure validation of a candidate analysis against the query.
  - DecisionPolicy: confidence and risk tier to an action.
  - ToolDispatcher: executes named capabilities; never fails the turn.
  - CheckpointStore: persists the State Container per thread.
  - DistributedLocker: coordinates the single writer of a thread across replicas.
  - EventSink: receives stage events for live progress.
*/
package ports

/*
Package arbiter is an orchestration engine for compliance analysis: it turns a
regulatory question into a validated, governed answer by walking a fixed graph
of stages over a single state record.

# Concept

Every turn starts at a guardrail, then either chats, or retrieves regulation
text, checks whether the question is answerable, generates a structured
analysis, validates it against deterministic rules and retries with the
violations fed back, applies regime-specific corrections, and finally hands
the candidate to a decision policy. The generative stage may call tools and
re-enter itself. Every loop is bounded.

Each stage returns only the fields it changed; the executor merges them,
checkpoints the thread, and reports a progress event. Domain failures are
never Go errors: they are final results with a discriminator (answer, chat,
clarification, review_required, blocked, error).

# Key Features

  - Bounded self-correction: at most three failed validations per turn.
  - Bounded tool use: a cap on tool rounds and on generations per turn.
  - Durable threads: memory, file, Redis and SQLite checkpoint stores with a
    single writer per thread (optionally across replicas via a Redis lock).
  - Streaming: ordered stage events whose last event is always the result.

# Usage

	gen := llm.NewFailover([]llm.Target{
		{Provider: llm.NewClient("https://api.groq.com/openai/v1", os.Getenv("GROQ_API_KEY")), Model: "llama-3.3-70b-versatile"},
	})
	gdpr, err := corpus.Load("data/gdpr.json")
	if err != nil {
		log.Fatal(err)
	}

	agent, err := arbiter.New(gen,
		arbiter.WithRetriever(domain.RegimeGDPR, corpus.NewRetriever(gdpr)),
		arbiter.WithRegimeRuleChecker(domain.RegimeGDPR, rules.GDPR()),
	)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := agent.Run(ctx, arbiter.Request{Query: "Can we refuse an erasure request for tax records?"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.Result.Kind, resp.Result.Analysis.Summary)
*/
package arbiter

/*
Package narrate is an AI-guided tour widget: it walks a user through a host
application step by step, speaking a narration for each step while a spotlight
highlights the element it talks about.

Elements are described in natural language and located by a vision model from
a screenshot of the page, with a CSS selector as the fallback. At any point
the user can pause the tour and ask a question; the answer is grounded in the
current tour context and a screenshot, spoken, and then the tour continues
where it stopped.

# Architecture

The widget is built around a Surface, the port to the host page. Everything
the tour draws (spotlight, captions, conversation modal, hover tooltips) is a
named layer on that surface, and every user interaction arrives from it as a
UIEvent. Adapters exist for an in-memory page (tests), a Chrome page driven
over CDP, and a websocket bridge to a browser.

  - Tours are loaded from YAML/JSON files or a Loam markdown repository.
  - Narration is synthesized remotely and cached (memory or Redis), with the
    platform voice as the fallback.
  - Analytics events are delivered fire-and-forget to HTTP, Redis streams,
    Elasticsearch or Prometheus.

# Usage

	cfg, err := config.Load("narrate.yaml")
	if err != nil {
		log.Fatal(err)
	}

	w, err := narrate.New(cfg, surface, narrate.WithLogger(logger))
	if err != nil {
		log.Fatal(err)
	}
	defer w.Destroy(context.Background())

	if err := w.Start(ctx, "onboarding"); err != nil {
		log.Fatal(err)
	}
*/
package narrate

/*
Package domain contains the core models of a narrated tour.

It defines what a tour is made of, what the orchestrator knows about the step being
played, and the vocabulary used to talk to a rendering surface. This package is kept
pure and free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - TourDefinition, Page, Step: the immutable description of a walkthrough.
  - Action: the tagged post-highlight action of a step (click, scroll, wait).
  - TourContext: a read-only snapshot of the current position in a tour.
  - ElementLocation: the result of resolving a step's target element.
  - AnalyticsEvent: a fire-and-forget record of what happened in a session.
  - Layer, UIEvent, ElementInfo: the contract with the rendering surface.
*/
package domain

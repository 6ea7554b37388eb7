/*
Package dsl provides a Go DSL for building narrate tours in code.

It is an alternative to YAML or JSON tour files when tours are generated,
used in tests, or benefit from IDE autocompletion and type checking.

Example usage:

	package main

	import (
		"github.com/aretw0/narrate"
		"github.com/aretw0/narrate/pkg/dsl"
	)

	func main() {
		b := dsl.New()

		home := b.Tour("onboarding").Name("Onboarding").Page("home").Title("Home")
		home.Step("welcome").
			Narrate("Welcome! Let me show you around.")
		home.Step("search").
			Select("#search").
			Element("the search box in the header").
			Narrate("Search from anywhere.").
			Click()

		// The resulting loader is a ports.TourLoader.
		loader, err := b.Build()
		// ... pass narrate.WithTourLoader(loader) to narrate.New(...)
	}
*/
package dsl

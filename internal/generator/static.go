package generator

import (
	"context"
	"fmt"
	"hash/fnv"
)

var staticReadings = []string{
	"A steady current runs beneath the surface of the day. Trust the pace you have already set.",
	"Something overlooked asks for a second glance. What you find there is smaller than feared and more useful than expected.",
	"An open door is not an obligation. Choose the threshold you actually want to cross.",
	"The pattern repeats until it is named. Today offers a good light to name it in.",
	"Hold the question loosely. The answer arrives on its own schedule, and it is already on its way.",
}

type staticGenerator struct{}

// NewStatic builds a deterministic Generator for local development and
// tests. The same request always yields the same text.
func NewStatic() Generator {
	return &staticGenerator{}
}

func (g *staticGenerator) Generate(_ context.Context, req Request) (Result, error) {
	h := fnv.New32a()
	fmt.Fprint(h, buildPrompt(req))

	text := staticReadings[int(h.Sum32())%len(staticReadings)]
	return Result{Text: text, Model: "static"}, nil
}

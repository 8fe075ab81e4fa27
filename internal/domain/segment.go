package domain

// EditSegment is one incremental stroke segment relayed between sessions
// while a gesture is in progress. Segments are ephemeral: they are never
// persisted and never replayed, and no client needs them to converge — the
// full-snapshot applyState is the sole convergence mechanism.
type EditSegment struct {
	BoardID   string  `json:"boardId"`
	X0        float64 `json:"x0"`
	Y0        float64 `json:"y0"`
	X1        float64 `json:"x1"`
	Y1        float64 `json:"y1"`
	Color     string  `json:"color"`
	LineWidth float64 `json:"lineWidth"`
}

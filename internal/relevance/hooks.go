package relevance

// Hooks are optional callbacks for observing the pipeline.
type Hooks struct {
	// OnBackendCall fires after every backend call with its duration in seconds.
	OnBackendCall func(stage Stage, duration float64, err error)

	// OnVerdict fires once per item with its terminal status.
	OnVerdict func(status Status)
}

func (h Hooks) backendCall(stage Stage, duration float64, err error) {
	if h.OnBackendCall != nil {
		h.OnBackendCall(stage, duration, err)
	}
}

func (h Hooks) verdict(status Status) {
	if h.OnVerdict != nil {
		h.OnVerdict(status)
	}
}

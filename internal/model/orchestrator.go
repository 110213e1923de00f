package model

// OrchestratorModel declares the pipeline entry point: the type fed into
// the first step, whether a CLI wrapper is generated, and the downstream
// modules the orchestrator client connects to.
type OrchestratorModel struct {
	FirstInputType string   `json:"firstInputType" yaml:"firstInputType"`
	GenerateCLI    bool     `json:"generateCli" yaml:"generateCli"`
	Modules        []string `json:"modules" yaml:"modules"`
}

// ClientDefaults carries the connection defaults written into the
// orchestrator client wiring resource for each downstream module.
type ClientDefaults struct {
	URLTemplate string `json:"urlTemplate" yaml:"urlTemplate"`
	TimeoutMS   int    `json:"timeoutMs" yaml:"timeoutMs"`
}

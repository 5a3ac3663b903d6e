package config

const (
	JournalDriverSQLite   = "sqlite"
	JournalDriverPostgres = "postgres"
)

// Telemetry configures the OTLP exporters. Headers uses the OTEL header
// syntax: key=value,foo=bar.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Enabled reports whether any exporter is switched on.
func (t Telemetry) Enabled() bool { return t.Traces || t.Metrics }

// Pauses halts modules without restarting the host.
type Pauses struct {
	Lending bool `toml:"Lending"`
}

// Modules lists the paused module names.
func (p Pauses) Modules() []string {
	modules := []string{}
	if p.Lending {
		modules = append(modules, "lending")
	}
	return modules
}

// Assets lists the keywords registered with the vault. Escrowable assets are
// paid in by users; mintable assets are created by the engine.
type Assets struct {
	Escrowable []string `toml:"Escrowable"`
	Mintable   []string `toml:"Mintable"`
}

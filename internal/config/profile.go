package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/netra-systems/zen-sub295/internal/events"
	"github.com/netra-systems/zen-sub295/internal/sequence"
	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// SupportedMajor is the profile format major version this build understands
const SupportedMajor = "v1"

// ErrUnsupportedVersion is returned when a profile's version is not v1.x
var ErrUnsupportedVersion = errors.New("unsupported profile version")

var profileValidate *validator.Validate

func init() {
	profileValidate = validator.New()

	// Report YAML keys in validation errors
	profileValidate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Profile is a sequence profile loaded from YAML: the declared events,
// their dependencies, and monitor settings.
type Profile struct {
	// Version is the profile format version (semver, major v1)
	Version string `yaml:"version" validate:"required"`

	// Events are declared in order; the order is used for reporting
	Events []EventSpec `yaml:"events" validate:"required,min=1,dive"`

	Monitor MonitorSettings `yaml:"monitor"`
}

// EventSpec declares one event type
type EventSpec struct {
	Name       string       `yaml:"name" validate:"required"`
	DependsOn  []string     `yaml:"depends_on,omitempty" validate:"dive,required"`
	Repeatable bool         `yaml:"repeatable,omitempty"`
	Payload    *PayloadSpec `yaml:"payload,omitempty"`
}

// PayloadSpec declares payload checks for one event type
type PayloadSpec struct {
	// Typed validates canonical payloads against their struct tags
	Typed bool `yaml:"typed,omitempty"`
	// Required lists keys that must be present in the payload
	Required []string `yaml:"required,omitempty" validate:"dive,required"`
}

// MonitorSettings configures the per-run monitor
type MonitorSettings struct {
	// StallTimeout is a Go duration, e.g. "30s". Empty disables stall detection.
	StallTimeout string `yaml:"stall_timeout,omitempty"`

	// WindowSize is the number of finished runs kept in memory
	WindowSize int `yaml:"window_size,omitempty" validate:"gte=0"`

	// CheckPayloads enables typed payload checks for every canonical event
	CheckPayloads bool `yaml:"check_payloads,omitempty"`

	// FinishOnComplete finishes a run as soon as every declared event occurred
	FinishOnComplete bool `yaml:"finish_on_complete,omitempty"`
}

// Default returns the canonical five-event profile
func Default() *Profile {
	p := &Profile{
		Version: "v1.0.0",
		Monitor: MonitorSettings{WindowSize: 100},
	}
	var prev string
	for _, t := range events.CanonicalEventTypes() {
		spec := EventSpec{Name: string(t)}
		if prev != "" {
			spec.DependsOn = []string{prev}
		}
		p.Events = append(p.Events, spec)
		prev = string(t)
	}
	return p
}

// LoadFromFile loads and validates a profile from a YAML file
func LoadFromFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML profile. Unknown keys are rejected.
func Parse(data []byte) (*Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var p Profile
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load resolves the profile to use: path if set, else $EVENTSEQ_CONFIG,
// else Default(). Environment overrides are applied last.
func Load(path string) (*Profile, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	p := Default()
	if path != "" {
		var err error
		if p, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := p.ApplyEnv(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks field constraints, the version, and that the declared
// events form a valid dependency graph.
func (p *Profile) Validate() error {
	if err := profileValidate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			problems := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid profile: %s", strings.Join(problems, "; "))
		}
		return fmt.Errorf("invalid profile: %w", err)
	}

	if err := checkVersion(p.Version); err != nil {
		return err
	}

	if _, err := p.StallTimeout(); err != nil {
		return err
	}

	if _, err := p.Graph(); err != nil {
		return fmt.Errorf("invalid profile: %w", err)
	}
	return nil
}

func checkVersion(v string) error {
	canonical := v
	if !strings.HasPrefix(canonical, "v") {
		canonical = "v" + canonical
	}
	if !semver.IsValid(canonical) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedVersion, v)
	}
	if semver.Major(canonical) != SupportedMajor {
		return fmt.Errorf("%w: %s (supported: %s.x)", ErrUnsupportedVersion, v, SupportedMajor)
	}
	return nil
}

// StallTimeout parses monitor.stall_timeout. Empty means disabled.
func (p *Profile) StallTimeout() (time.Duration, error) {
	if p.Monitor.StallTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Monitor.StallTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid stall_timeout %q: %w", p.Monitor.StallTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("stall_timeout must be non-negative (got %v)", d)
	}
	return d, nil
}

// Graph builds the dependency graph the profile declares
func (p *Profile) Graph() (*sequence.Graph, error) {
	declared := make([]events.EventType, 0, len(p.Events))
	deps := make(map[events.EventType][]events.EventType)
	var repeatable []events.EventType

	for _, spec := range p.Events {
		t := events.EventType(spec.Name)
		declared = append(declared, t)
		for _, d := range spec.DependsOn {
			deps[t] = append(deps[t], events.EventType(d))
		}
		if spec.Repeatable {
			repeatable = append(repeatable, t)
		}
	}

	return sequence.NewGraph(declared, deps, sequence.WithRepeatable(repeatable...))
}

// PayloadRules returns the payload checks for every event that has any.
// With monitor.check_payloads set, canonical events get typed checks.
func (p *Profile) PayloadRules() map[events.EventType]events.PayloadRule {
	rules := make(map[events.EventType]events.PayloadRule)
	for _, spec := range p.Events {
		t := events.EventType(spec.Name)
		var rule events.PayloadRule
		if spec.Payload != nil {
			rule.Typed = spec.Payload.Typed
			rule.Required = append([]string(nil), spec.Payload.Required...)
		}
		if p.Monitor.CheckPayloads && t.IsCanonical() {
			rule.Typed = true
		}
		if !rule.IsZero() {
			rules[t] = rule
		}
	}
	return rules
}

// MonitorConfig converts the profile into a watchdog monitor configuration.
// Observers, logger and clock are left for the caller.
func (p *Profile) MonitorConfig() (*watchdog.Config, error) {
	graph, err := p.Graph()
	if err != nil {
		return nil, err
	}
	stall, err := p.StallTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &watchdog.Config{
		Graph:            graph,
		WindowSize:       p.Monitor.WindowSize,
		StallTimeout:     stall,
		PayloadRules:     p.PayloadRules(),
		FinishOnComplete: p.Monitor.FinishOnComplete,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// YAML encodes the profile
func (p *Profile) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

package metric

import "fmt"

type Kind int

const (
	// single field read as is, zero is a legitimate reading
	KindInstantaneous Kind = iota
	// single ever increasing counter
	KindMonotonic
	// sum of several counters, guarded as a whole
	KindAggregatedMonotonic
	// vendor code mapped to a closed set of labels
	KindEnumerated
	// raw pulse count scaled by a divider
	KindScaledCounter
	// boolean derived from a vendor code prefix
	KindFlag
)

func (k Kind) String() string {
	switch k {
	case KindInstantaneous:
		return "instantaneous"
	case KindMonotonic:
		return "monotonic"
	case KindAggregatedMonotonic:
		return "aggregated_monotonic"
	case KindEnumerated:
		return "enumerated"
	case KindScaledCounter:
		return "scaled_counter"
	case KindFlag:
		return "flag"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

const (
	COMPONENT_SENSOR        = "sensor"
	COMPONENT_BINARY_SENSOR = "binary_sensor"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL            = "total"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"

	DEVICE_CLASS_POWER  = "power"
	DEVICE_CLASS_ENERGY = "energy"
	DEVICE_CLASS_ENUM   = "enum"
)

// Attribute exposes a raw snapshot field next to the metric value.
type Attribute struct {
	Name  string
	Field string
}

// Label maps vendor codes ending with Suffix to Value.
type Label struct {
	Suffix string
	Value  string
	Name   string
}

// Spec is the declarative description of one derived metric.
type Spec struct {
	Id          string
	Name        string
	Channel     string
	Kind        Kind
	Fields      []string
	Unit        string
	DeviceClass string
	StateClass  string
	Icon        string
	// 0 means the raw value is reported unchanged
	Divider    float64
	ZeroGuard  bool
	Decimals   uint
	Attributes []Attribute

	// enumerated metrics
	Labels  []Label
	Unknown Label

	// flag metrics
	Prefix string
}

func (s Spec) Component() string {
	if s.Kind == KindFlag {
		return COMPONENT_BINARY_SENSOR
	}
	return COMPONENT_SENSOR
}

// Options lists every label value an enumerated metric can report.
func (s Spec) Options() []string {
	if s.Kind != KindEnumerated {
		return nil
	}
	options := make([]string, 0, len(s.Labels)+1)
	for _, l := range s.Labels {
		options = append(options, l.Value)
	}
	return append(options, s.Unknown.Value)
}

type ValueType int

const (
	ValueNumber ValueType = iota
	ValueText
	ValueBool
)

// Value is the outcome of a derivation. An unavailable value carries no reading.
type Value struct {
	Type       ValueType
	Number     float64
	Text       string
	Bool       bool
	Available  bool
	Guarded    bool
	Attributes map[string]any
}

func NumberValue(v float64) Value {
	return Value{Type: ValueNumber, Number: v, Available: true}
}

func TextValue(v string) Value {
	return Value{Type: ValueText, Text: v, Available: true}
}

func BoolValue(v bool) Value {
	return Value{Type: ValueBool, Bool: v, Available: true}
}

func Unavailable(t ValueType) Value {
	return Value{Type: t}
}

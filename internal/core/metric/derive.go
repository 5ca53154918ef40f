package metric

import (
	"fmt"
	"strings"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
)

// Derive maps a snapshot to the value of one metric. It never panics on
// malformed snapshots: absent fields yield a *MissingDataError and
// non-numeric fields an *InvalidValueError.
func Derive(spec Spec, snapshot ecodevices.Snapshot) (Value, error) {
	var (
		value Value
		err   error
	)
	switch spec.Kind {
	case KindInstantaneous, KindMonotonic, KindAggregatedMonotonic, KindScaledCounter:
		value, err = deriveNumber(spec, snapshot)
	case KindEnumerated:
		value, err = deriveEnumerated(spec, snapshot)
	case KindFlag:
		value, err = deriveFlag(spec, snapshot)
	default:
		return Value{}, fmt.Errorf("metric %s: unsupported kind %s", spec.Id, spec.Kind)
	}
	if err != nil {
		return value, err
	}
	if len(spec.Attributes) > 0 {
		value.Attributes = mergeAttributes(value.Attributes, attributes(spec, snapshot))
	}
	return value, nil
}

func deriveNumber(spec Spec, snapshot ecodevices.Snapshot) (Value, error) {
	if len(spec.Fields) == 0 {
		return Unavailable(ValueNumber), fmt.Errorf("metric %s has no source field", spec.Id)
	}
	if missing := missingFields(spec.Fields, snapshot); len(missing) > 0 {
		return Unavailable(ValueNumber), &MissingDataError{Metric: spec.Id, Fields: missing}
	}

	// counters are summed before the guard applies, never guarded one by one
	var sum float64
	for _, field := range spec.Fields {
		v, err := snapshot.Number(field)
		if err != nil {
			return Unavailable(ValueNumber), &InvalidValueError{Metric: spec.Id, Field: field, Err: err}
		}
		sum += v
	}

	if spec.ZeroGuard && sum <= 0 {
		value := Unavailable(ValueNumber)
		value.Guarded = true
		return value, nil
	}
	if spec.Divider > 0 {
		sum = sum / spec.Divider
	}
	return NumberValue(sum), nil
}

func deriveEnumerated(spec Spec, snapshot ecodevices.Snapshot) (Value, error) {
	label := spec.Unknown
	if code, ok := firstString(spec, snapshot); ok {
		for _, l := range spec.Labels {
			if strings.HasSuffix(code, l.Suffix) {
				label = l
				break
			}
		}
	}
	value := TextValue(label.Value)
	if label.Name != "" {
		value.Attributes = map[string]any{"name": label.Name}
	}
	return value, nil
}

func deriveFlag(spec Spec, snapshot ecodevices.Snapshot) (Value, error) {
	if missing := missingFields(spec.Fields, snapshot); len(missing) > 0 {
		return Unavailable(ValueBool), &MissingDataError{Metric: spec.Id, Fields: missing}
	}
	code, ok := firstString(spec, snapshot)
	if !ok || code == "" {
		return Unavailable(ValueBool), nil
	}
	return BoolValue(strings.HasPrefix(code, spec.Prefix)), nil
}

func firstString(spec Spec, snapshot ecodevices.Snapshot) (string, bool) {
	if len(spec.Fields) == 0 {
		return "", false
	}
	return snapshot.String(spec.Fields[0])
}

func missingFields(fields []string, snapshot ecodevices.Snapshot) []string {
	var missing []string
	for _, field := range fields {
		if !snapshot.Has(field) {
			missing = append(missing, field)
		}
	}
	return missing
}

// attributes copies the raw fields listed by the spec. Fields the firmware
// does not report are left out.
func attributes(spec Spec, snapshot ecodevices.Snapshot) map[string]any {
	attrs := make(map[string]any, len(spec.Attributes))
	for _, a := range spec.Attributes {
		if v, ok := snapshot.Raw(a.Field); ok {
			attrs[a.Name] = v
		}
	}
	return attrs
}

func mergeAttributes(dst, src map[string]any) map[string]any {
	if dst == nil {
		return src
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

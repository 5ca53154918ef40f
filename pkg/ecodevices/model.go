package ecodevices

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	PRODUCT_ECODEVICES = "Eco-devices"
	FIELD_PRODUCT      = "product"
)

// Command is the vendor selector for the data segment returned by the API.
type Command int

const (
	// live teleinfo data, tariff period and pulse indexes
	CommandTelemetry Command = 10
	// daily counters
	CommandCounters Command = 20
	// system information (mac address, firmware version)
	CommandIdentity Command = 30
)

func (c Command) String() string {
	return strconv.Itoa(int(c))
}

var hostIdReplacer = strings.NewReplacer(".", "_", ":", "_")

type DeviceIdentity struct {
	Host       string
	Port       uint
	MACAddress string
	Version    string
}

// Id returns a stable identifier for the gateway. The MAC address survives IP
// changes, host:port is only used when the firmware does not report it.
func (d DeviceIdentity) Id() string {
	if d.MACAddress != "" {
		return strings.ToLower(strings.ReplaceAll(d.MACAddress, ":", ""))
	}
	return fmt.Sprintf("%s_%d", hostIdReplacer.Replace(d.Host), d.Port)
}

func (d DeviceIdentity) ConfigurationURL() string {
	return "http://" + net.JoinHostPort(d.Host, strconv.Itoa(int(d.Port)))
}

// Snapshot is an immutable set of raw fields captured by one device poll.
type Snapshot struct {
	fields     map[string]any
	capturedAt time.Time
}

func NewSnapshot(fields map[string]any, capturedAt time.Time) Snapshot {
	return Snapshot{
		fields:     maps.Clone(fields),
		capturedAt: capturedAt,
	}
}

// Merge returns a new snapshot holding the fields of every given snapshot.
// Later snapshots win on duplicated keys.
func Merge(capturedAt time.Time, snapshots ...Snapshot) Snapshot {
	fields := make(map[string]any)
	for _, s := range snapshots {
		maps.Copy(fields, s.fields)
	}
	return Snapshot{
		fields:     fields,
		capturedAt: capturedAt,
	}
}

func (s Snapshot) CapturedAt() time.Time {
	return s.capturedAt
}

func (s Snapshot) Len() int {
	return len(s.fields)
}

func (s Snapshot) Has(key string) bool {
	_, ok := s.fields[key]
	return ok
}

func (s Snapshot) Keys() []string {
	return slices.Sorted(maps.Keys(s.fields))
}

// Raw returns the decoded value of a field.
func (s Snapshot) Raw(key string) (any, bool) {
	v, ok := s.fields[key]
	return v, ok
}

// Fields returns a copy of the raw fields.
func (s Snapshot) Fields() map[string]any {
	return maps.Clone(s.fields)
}

// Number returns a field as float64. Firmware revisions report counters either
// as JSON numbers or as zero padded strings, both are accepted.
func (s Snapshot) Number(key string) (float64, error) {
	v, ok := s.fields[key]
	if !ok {
		return 0, fmt.Errorf("field %s not found", key)
	}
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("field %s is not a number: %q", key, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("field %s has unexpected type %T", key, v)
	}
}

// String returns a field as text. Numbers are formatted back to their JSON form.
func (s Snapshot) String(key string) (string, bool) {
	v, ok := s.fields[key]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

type Client interface {
	Fetch(ctx context.Context, cmd Command) (Snapshot, error)
	Identify(ctx context.Context) (DeviceIdentity, error)
	Ping(ctx context.Context) error
	Close()
}

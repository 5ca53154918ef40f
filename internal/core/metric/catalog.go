package metric

import (
	"fmt"
	"slices"
	"strings"

	"github.com/berfenger/ecodevices2mqtt/pkg/ecodevices"
)

type Generation string

const (
	GENERATION_AUTO    Generation = "auto"
	GENERATION_LEGACY  Generation = "legacy"
	GENERATION_CURRENT Generation = "current"
)

type Scheme string

const (
	SCHEME_BASE  Scheme = "base"
	SCHEME_HCHP  Scheme = "hchp"
	SCHEME_TEMPO Scheme = "tempo"
)

func ParseScheme(s string) (Scheme, error) {
	switch scheme := Scheme(strings.ToLower(s)); scheme {
	case SCHEME_BASE, SCHEME_HCHP, SCHEME_TEMPO:
		return scheme, nil
	case "":
		return SCHEME_BASE, nil
	default:
		return "", fmt.Errorf("unknown tariff scheme %q", s)
	}
}

func ParseGeneration(s string) (Generation, error) {
	switch g := Generation(strings.ToLower(s)); g {
	case GENERATION_AUTO, GENERATION_LEGACY, GENERATION_CURRENT:
		return g, nil
	case "":
		return GENERATION_AUTO, nil
	default:
		return "", fmt.Errorf("unknown firmware generation %q", s)
	}
}

var (
	legacyFields  = []string{"INDEX_C1", "INDEX_C2", "Day_C1", "Day_C2"}
	currentFields = []string{"count0", "count1", "meter2", "meter3", "c0day", "c1day"}
)

// DetectGeneration guesses the firmware generation from the fields of a snapshot.
func DetectGeneration(snapshot ecodevices.Snapshot) Generation {
	for _, f := range currentFields {
		if snapshot.Has(f) {
			return GENERATION_CURRENT
		}
	}
	for _, f := range legacyFields {
		if snapshot.Has(f) {
			return GENERATION_LEGACY
		}
	}
	return GENERATION_CURRENT
}

type TeleinfoOptions struct {
	Input   int
	Enabled bool
	Scheme  Scheme
}

type MeterOptions struct {
	Input         int
	Enabled       bool
	Unit          string
	TotalUnit     string
	DeviceClass   string
	DividerFactor float64
	ZeroGuard     bool
}

type Options struct {
	Teleinfo []TeleinfoOptions
	Meters   []MeterOptions
}

// Catalog is the set of metrics exposed for one gateway, resolved once at setup.
type Catalog struct {
	generation Generation
	specs      []Spec
}

func NewCatalog(generation Generation, specs ...Spec) *Catalog {
	return &Catalog{
		generation: generation,
		specs:      slices.Clone(specs),
	}
}

func BuildCatalog(opts Options, generation Generation) (*Catalog, error) {
	if generation != GENERATION_LEGACY && generation != GENERATION_CURRENT {
		return nil, fmt.Errorf("catalog needs a resolved firmware generation, got %q", generation)
	}
	var specs []Spec
	for _, ti := range opts.Teleinfo {
		if !ti.Enabled {
			continue
		}
		tiSpecs, err := teleinfoSpecs(ti)
		if err != nil {
			return nil, err
		}
		specs = append(specs, tiSpecs...)
	}
	for _, m := range opts.Meters {
		if !m.Enabled {
			continue
		}
		if m.DividerFactor < 0 {
			return nil, fmt.Errorf("meter %d: divider factor must not be negative", m.Input)
		}
		if generation == GENERATION_LEGACY {
			specs = append(specs, legacyMeterSpecs(m)...)
		} else {
			specs = append(specs, meterSpecs(m)...)
		}
	}
	return NewCatalog(generation, specs...), nil
}

func (c *Catalog) Generation() Generation {
	return c.generation
}

func (c *Catalog) Specs() []Spec {
	return slices.Clone(c.specs)
}

func (c *Catalog) Len() int {
	return len(c.specs)
}

func (c *Catalog) Get(id string) (Spec, bool) {
	for _, s := range c.specs {
		if s.Id == id {
			return s, true
		}
	}
	return Spec{}, false
}

// teleinfo

var teleinfoAttributes = []Attribute{
	{"type_heures", "PTEC"},
	{"souscription", "ISOUSC"},
	{"intensite_max", "IMAX"},
	{"intensite_max_ph1", "IMAX1"},
	{"intensite_max_ph2", "IMAX2"},
	{"intensite_max_ph3", "IMAX3"},
	{"intensite_now", "IINST"},
	{"intensite_now_ph1", "IINST1"},
	{"intensite_now_ph2", "IINST2"},
	{"intensite_now_ph3", "IINST3"},
	{"conso_instant_general", "PPAP"},
	{"puissance_apparente", "PAPP"},
	{"avertissement_depassement", "ADPS"},
	{"numero_compteur", "ADCO"},
	{"option_tarifaire", "OPTARIF"},
	{"index_base", "BASE"},
	{"etat", "MOTDETAT"},
	{"presence_potentiels", "PPOT"},
	{"index_heures_creuses", "HCHC"},
	{"index_heures_pleines", "HCHP"},
	{"index_heures_normales", "EJPHN"},
	{"index_heures_pointes", "EJPHPM"},
	{"preavis_heures_pointes", "PEJP"},
	{"groupe_horaire", "HHPHC"},
	{"index_heures_creuses_jour_bleu", "BBRHCJB"},
	{"index_heures_pleines_jour_bleu", "BBRHPJB"},
	{"index_heures_creuses_jour_blanc", "BBRHCJW"},
	{"index_heures_pleines_jour_blanc", "BBRHPJW"},
	{"index_heures_creuses_jour_rouge", "BBRHCJR"},
	{"index_heures_pleines_jour_rouge", "BBRHPJR"},
	{"type_heures_demain", "DEMAIN"},
}

var tempoCounters = []struct {
	name  string
	field string
}{
	{"Jour Bleu HC", "BBRHCJB"},
	{"Jour Bleu HP", "BBRHPJB"},
	{"Jour Blanc HC", "BBRHCJW"},
	{"Jour Blanc HP", "BBRHPJW"},
	{"Jour Rouge HC", "BBRHCJR"},
	{"Jour Rouge HP", "BBRHPJR"},
}

var (
	TempoLabels = []Label{
		{Suffix: "JB", Value: "blue", Name: "Bleu"},
		{Suffix: "JW", Value: "white", Name: "Blanc"},
		{Suffix: "JR", Value: "red", Name: "Rouge"},
	}
	TempoUnknown = Label{Value: "unknown", Name: "inconnu"}
)

func teleinfoSpecs(opts TeleinfoOptions) ([]Spec, error) {
	if opts.Input < 1 {
		return nil, fmt.Errorf("invalid teleinfo input %d", opts.Input)
	}
	scheme := opts.Scheme
	if scheme == "" {
		scheme = SCHEME_BASE
	}
	prefix := fmt.Sprintf("T%d_", opts.Input)
	id := fmt.Sprintf("t%d", opts.Input)
	name := fmt.Sprintf("Teleinfo %d", opts.Input)
	channel := fmt.Sprintf("T%d", opts.Input)

	attrs := make([]Attribute, len(teleinfoAttributes))
	for i, a := range teleinfoAttributes {
		attrs[i] = Attribute{Name: a.Name, Field: prefix + a.Field}
	}

	energy := func(id, name string, fields ...string) Spec {
		return Spec{
			Id:          id,
			Name:        name,
			Channel:     channel,
			Kind:        KindMonotonic,
			Fields:      fields,
			Unit:        "Wh",
			DeviceClass: DEVICE_CLASS_ENERGY,
			StateClass:  STATE_CLASS_TOTAL_INCREASING,
			Icon:        "mdi:meter-electric",
			ZeroGuard:   true,
		}
	}

	specs := []Spec{
		{
			Id:          id,
			Name:        name,
			Channel:     channel,
			Kind:        KindInstantaneous,
			Fields:      []string{prefix + "PAPP"},
			Unit:        "VA",
			DeviceClass: DEVICE_CLASS_POWER,
			StateClass:  STATE_CLASS_MEASUREMENT,
			Icon:        "mdi:flash",
			Attributes:  attrs,
		},
	}

	switch scheme {
	case SCHEME_BASE:
		specs = append(specs, energy(id+"_total", name+" Total", prefix+"BASE"))
	case SCHEME_HCHP:
		total := energy(id+"_total", name+" Total", prefix+"HCHC", prefix+"HCHP")
		total.Kind = KindAggregatedMonotonic
		specs = append(specs,
			total,
			energy(id+"_total_hc", name+" HC Total", prefix+"HCHC"),
			energy(id+"_total_hp", name+" HP Total", prefix+"HCHP"),
		)
	case SCHEME_TEMPO:
		fields := make([]string, len(tempoCounters))
		for i, c := range tempoCounters {
			fields[i] = prefix + c.field
		}
		total := energy(id+"_total", name+" Total", fields...)
		total.Kind = KindAggregatedMonotonic
		specs = append(specs, total)
		for _, c := range tempoCounters {
			specs = append(specs, energy(id+"_"+strings.ToLower(c.field), name+" "+c.name+" Total", prefix+c.field))
		}
		specs = append(specs,
			colorSpec(id+"_ptec", name+" Tempo Couleur", channel, prefix+"PTEC"),
			colorSpec(id+"_demain", name+" Tempo Couleur Demain", channel, prefix+"DEMAIN"),
		)
	default:
		return nil, fmt.Errorf("teleinfo %d: unknown tariff scheme %q", opts.Input, scheme)
	}

	// off-peak indicator only makes sense with a split tariff
	if scheme == SCHEME_HCHP || scheme == SCHEME_TEMPO {
		specs = append(specs, Spec{
			Id:      id + "_heures_creuses",
			Name:    name + " Heures Creuses",
			Channel: channel,
			Kind:    KindFlag,
			Fields:  []string{prefix + "PTEC"},
			Icon:    "mdi:cash-clock",
			Prefix:  "HC",
		})
	}
	return specs, nil
}

func colorSpec(id, name, channel, field string) Spec {
	return Spec{
		Id:          id,
		Name:        name,
		Channel:     channel,
		Kind:        KindEnumerated,
		Fields:      []string{field},
		DeviceClass: DEVICE_CLASS_ENUM,
		Icon:        "mdi:palette",
		Labels:      TempoLabels,
		Unknown:     TempoUnknown,
	}
}

// meters

// device classes Home Assistant does not accept with the measurement state class
var noMeasurementDeviceClasses = []string{"energy", "gas", "water", "volume", "volume_storage", "monetary"}

func meterStateClass(deviceClass string) string {
	if slices.Contains(noMeasurementDeviceClasses, deviceClass) {
		return ""
	}
	return STATE_CLASS_MEASUREMENT
}

func meterNames(opts MeterOptions) (id, name, channel, totalUnit string) {
	id = fmt.Sprintf("c%d", opts.Input)
	name = fmt.Sprintf("Meter %d", opts.Input)
	channel = fmt.Sprintf("C%d", opts.Input)
	totalUnit = opts.TotalUnit
	if totalUnit == "" {
		totalUnit = opts.Unit
	}
	return
}

func meterSpecs(opts MeterOptions) []Spec {
	id, name, channel, totalUnit := meterNames(opts)
	// device counters are zero based (count0, c0day) while meter fields start at meter2
	counter := opts.Input - 1

	return []Spec{
		{
			Id:          id,
			Name:        name,
			Channel:     channel,
			Kind:        KindScaledCounter,
			Fields:      []string{fmt.Sprintf("meter%d", opts.Input+1)},
			Unit:        opts.Unit,
			DeviceClass: opts.DeviceClass,
			StateClass:  meterStateClass(opts.DeviceClass),
			Icon:        "mdi:counter",
			Divider:     opts.DividerFactor,
			Decimals:    3,
			Attributes: []Attribute{
				{Name: "total", Field: fmt.Sprintf("count%d", counter)},
				{Name: "fuel", Field: fmt.Sprintf("c%d_fuel", counter)},
			},
		},
		{
			Id:          id + "_daily",
			Name:        name + " Daily",
			Channel:     channel,
			Kind:        KindScaledCounter,
			Fields:      []string{fmt.Sprintf("c%dday", counter)},
			Unit:        opts.Unit,
			DeviceClass: opts.DeviceClass,
			StateClass:  STATE_CLASS_TOTAL,
			Icon:        "mdi:counter",
			Divider:     opts.DividerFactor,
			Decimals:    3,
		},
		{
			Id:          id + "_total",
			Name:        name + " Total",
			Channel:     channel,
			Kind:        KindMonotonic,
			Fields:      []string{fmt.Sprintf("count%d", counter)},
			Unit:        totalUnit,
			DeviceClass: opts.DeviceClass,
			StateClass:  STATE_CLASS_TOTAL_INCREASING,
			Icon:        "mdi:counter",
			Divider:     1000,
			ZeroGuard:   opts.ZeroGuard,
			Decimals:    3,
		},
	}
}

func legacyMeterSpecs(opts MeterOptions) []Spec {
	id, name, channel, totalUnit := meterNames(opts)

	return []Spec{
		{
			Id:          id + "_daily",
			Name:        name + " Daily",
			Channel:     channel,
			Kind:        KindScaledCounter,
			Fields:      []string{fmt.Sprintf("Day_C%d", opts.Input)},
			Unit:        opts.Unit,
			DeviceClass: opts.DeviceClass,
			StateClass:  STATE_CLASS_TOTAL,
			Icon:        "mdi:counter",
			Divider:     opts.DividerFactor,
			Decimals:    3,
		},
		{
			Id:          id + "_total",
			Name:        name + " Total",
			Channel:     channel,
			Kind:        KindMonotonic,
			Fields:      []string{fmt.Sprintf("INDEX_C%d", opts.Input)},
			Unit:        totalUnit,
			DeviceClass: opts.DeviceClass,
			StateClass:  STATE_CLASS_TOTAL_INCREASING,
			Icon:        "mdi:counter",
			Divider:     1000,
			ZeroGuard:   opts.ZeroGuard,
			Decimals:    3,
		},
	}
}

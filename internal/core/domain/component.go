package domain

type Device struct {
	Id               string
	Name             string
	Version          string
	Model            string
	Manufacturer     string
	ViaDevice        string
	ConfigurationURL string
	MAC              string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string // sensor, binary_sensor
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total, total_increasing
	DeviceClass       string // power, energy, enum, water, ...
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
	Options           []string
	// per-entity availability and attributes topics
	HasAvailability   bool
	HasAttributes     bool
	SuggestedDecimals *uint
}

type GenericButton struct {
	Device         Device
	Id             string
	Name           string
	UniqueId       string
	Icon           string
	EntityCategory string
}

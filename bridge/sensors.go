package bridge

import (
	"encoding/json"
	"fmt"
)

// RealtimeData is the vendor's realtime device snapshot.
type RealtimeData struct {
	PV1Voltage       float64 `json:"pv1Voltage"`
	PV2Voltage       float64 `json:"pv2Voltage"`
	PV1Power         float64 `json:"pv1Power"`
	PV2Power         float64 `json:"pv2Power"`
	HomeLoad         float64 `json:"homeLoad"`
	ACOutputPower    float64 `json:"acOutputPower"`
	GridPowerFlow    float64 `json:"gridPowerFlow"`
	ACInputVoltage   float64 `json:"acInputVoltage"`
	ACInputFrequency float64 `json:"acInputFrequency"`
	BatterySoc       float64 `json:"batterySoc"`
	BatteryVoltage   float64 `json:"batteryVoltage"`
	BatteryCurrent   float64 `json:"batteryCurrent"`
	BatteryPower     float64 `json:"batteryPower"`
	Temperature      float64 `json:"temperature"`
	Timestamp        string  `json:"timestamp"`
}

// Derived holds values computed from the raw snapshot the same way the
// vendor's dashboard does.
type Derived struct {
	TotalPV         float64
	PVCurrent       float64
	GridCurrent     float64
	InverterPower   float64
	InverterCurrent float64
}

// pvStringActive reports whether a PV string voltage is in the valid
// production range. Idle strings float at low voltage and report
// garbage power.
func pvStringActive(voltage float64) bool {
	return voltage > 50 && voltage < 600
}

// ComputeDerived calculates dashboard-equivalent values from a raw
// snapshot.
func ComputeDerived(rt *RealtimeData) Derived {
	var d Derived

	if pvStringActive(rt.PV1Voltage) {
		d.TotalPV += rt.PV1Power
	}
	if pvStringActive(rt.PV2Voltage) {
		d.TotalPV += rt.PV2Power
	}

	if rt.PV1Voltage != 0 {
		d.PVCurrent = d.TotalPV / rt.PV1Voltage
	}
	if rt.ACInputVoltage != 0 {
		d.GridCurrent = rt.GridPowerFlow / rt.ACInputVoltage
	}

	d.InverterPower = rt.HomeLoad - rt.GridPowerFlow
	if d.InverterPower < 0 {
		d.InverterPower = 0
	}
	if rt.ACInputVoltage != 0 {
		d.InverterCurrent = d.InverterPower / rt.ACInputVoltage
	}

	return d
}

// Reading is one publishable sensor value.
type Reading struct {
	Measurement string
	Name        string
	Value       float64
}

// BuildReadings maps a snapshot and its derived values onto the
// published sensor set. Battery percentage outside 0..100 and negative
// non power/current values are dropped.
func BuildReadings(rt *RealtimeData) []Reading {
	d := ComputeDerived(rt)

	candidates := []Reading{
		{"temperature", "deviceTempValue", rt.Temperature},
		{"power", "essentialValue", rt.ACOutputPower},
		{"power", "gridValue", rt.GridPowerFlow},
		{"power", "loadValue", rt.HomeLoad},
		{"power", "pv1Power", rt.PV1Power},
		{"power", "pv2Power", rt.PV2Power},
		{"power", "pvTotalPower", d.TotalPV},
		{"power", "batteryValue", rt.BatteryPower},
		{"power", "InverterPower", d.InverterPower},
		{"battery", "batteryPercent", rt.BatterySoc},
		{"voltage", "batteryVoltage", rt.BatteryVoltage},
		{"voltage", "gridVoltageValue", rt.ACInputVoltage},
		{"voltage", "pvVoltage", rt.PV1Voltage},
		{"current", "pvCurrent", d.PVCurrent},
		{"current", "gridCurrent", d.GridCurrent},
		{"current", "batteryCurrent", rt.BatteryCurrent},
		{"current", "InverterCurrent", d.InverterCurrent},
		{"frequency", "Gird_Frequency", rt.ACInputFrequency},
	}

	readings := make([]Reading, 0, len(candidates))
	for _, r := range candidates {
		if r.Measurement == "battery" && (r.Value < 0 || r.Value > 100) {
			continue
		}
		if r.Value < 0 && r.Measurement != "power" && r.Measurement != "current" {
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// dailyPayload is the vendor's per-day energy report. Values arrive as
// tenths of a kWh.
type dailyPayload struct {
	PVRaw struct {
		PV tableValue `json:"pv"`
	} `json:"pv_raw"`
	BatRaw struct {
		Bats []tableValue `json:"bats"`
	} `json:"bat_raw"`
	OtherRaw struct {
		HomeLoad      tableValue `json:"homeload"`
		Grid          tableValue `json:"grid"`
		EssentialLoad tableValue `json:"essentialLoad"`
	} `json:"other_raw"`
}

type tableValue struct {
	TableValue float64 `json:"tableValue"`
}

// DailyTotals is the decoded per-day energy report in kWh.
type DailyTotals struct {
	PVTotal        float64
	BatCharge      float64
	BatDischarge   float64
	LoadTotal      float64
	GridTotal      float64
	EssentialTotal float64
}

func (p dailyPayload) Totals() DailyTotals {
	t := DailyTotals{
		PVTotal:        p.PVRaw.PV.TableValue / 10,
		LoadTotal:      p.OtherRaw.HomeLoad.TableValue / 10,
		GridTotal:      p.OtherRaw.Grid.TableValue / 10,
		EssentialTotal: p.OtherRaw.EssentialLoad.TableValue / 10,
	}
	if len(p.BatRaw.Bats) > 0 {
		t.BatCharge = p.BatRaw.Bats[0].TableValue / 10
	}
	if len(p.BatRaw.Bats) > 1 {
		t.BatDischarge = p.BatRaw.Bats[1].TableValue / 10
	}
	return t
}

// Readings maps the totals onto the published energy sensors.
func (t DailyTotals) Readings() []Reading {
	return []Reading{
		{"energy", "pvTotal", t.PVTotal},
		{"energy", "batCharge", t.BatCharge},
		{"energy", "batDischarge", t.BatDischarge},
		{"energy", "loadTotal", t.LoadTotal},
		{"energy", "gridTotal", t.GridTotal},
		{"energy", "essentialTotal", t.EssentialTotal},
	}
}

// Sensor describes one Home Assistant discoverable sensor.
type Sensor struct {
	Measurement  string
	Name         string
	FriendlyName string
}

// Sensors is the full published sensor set.
var Sensors = []Sensor{
	{"energy", "pvTotal", "LumenTree PV Total Energy"},
	{"energy", "batCharge", "LumenTree Battery Charge Energy"},
	{"energy", "batDischarge", "LumenTree Battery Discharge Energy"},
	{"energy", "loadTotal", "LumenTree Load Total Energy"},
	{"energy", "gridTotal", "LumenTree Grid Total Energy"},
	{"energy", "essentialTotal", "LumenTree Essential Load Energy"},
	{"temperature", "deviceTempValue", "LumenTree Device Temperature"},
	{"power", "essentialValue", "LumenTree Essential Load"},
	{"power", "gridValue", "LumenTree Grid Value"},
	{"power", "loadValue", "LumenTree Load Value"},
	{"power", "pv1Power", "LumenTree PV1 Power"},
	{"power", "pv2Power", "LumenTree PV2 Power"},
	{"power", "pvTotalPower", "LumenTree Total PV Power"},
	{"power", "batteryValue", "LumenTree Battery Power"},
	{"power", "InverterPower", "LumenTree Inverter Power"},
	{"battery", "batteryPercent", "LumenTree Battery Percentage"},
	{"voltage", "batteryVoltage", "LumenTree Battery Voltage"},
	{"voltage", "gridVoltageValue", "LumenTree Grid Voltage"},
	{"voltage", "pvVoltage", "LumenTree PV Voltage"},
	{"current", "pvCurrent", "LumenTree PV Current"},
	{"current", "gridCurrent", "LumenTree Grid Current"},
	{"current", "batteryCurrent", "LumenTree Battery Current"},
	{"current", "InverterCurrent", "LumenTree Inverter Current"},
	{"frequency", "Gird_Frequency", "LumenTree Gird Frequency"},
}

var sensorUnits = map[string]string{
	"temperature": "°C",
	"power":       "W",
	"energy":      "kWh",
	"battery":     "%",
	"current":     "A",
	"voltage":     "V",
	"frequency":   "Hz",
}

// StateTopic returns the MQTT state topic for a sensor.
func StateTopic(clientID, measurement, name string) string {
	return fmt.Sprintf("%s/%s/%s", clientID, measurement, name)
}

// DiscoveryMessage builds the Home Assistant discovery topic and
// payload for a sensor.
func DiscoveryMessage(clientID string, s Sensor) (topic string, payload []byte, err error) {
	topic = fmt.Sprintf("homeassistant/sensor/%s_%s_%s/config", clientID, s.Measurement, s.Name)

	friendly := s.FriendlyName
	if friendly == "" {
		friendly = fmt.Sprintf("%s %s %s", clientID, s.Name, s.Measurement)
	}

	body := map[string]interface{}{
		"name":                friendly,
		"state_topic":         StateTopic(clientID, s.Measurement, s.Name),
		"unit_of_measurement": sensorUnits[s.Measurement],
		"device_class":        s.Measurement,
		"unique_id":           fmt.Sprintf("%s_%s_%s", clientID, s.Measurement, s.Name),
		"device": map[string]interface{}{
			"identifiers":  []string{clientID},
			"name":         clientID,
			"manufacturer": "LumenTree",
			"model":        "Energy Monitor",
		},
	}

	payload, err = json.Marshal(body)
	return topic, payload, err
}

package convert

// Values captured from instrument responses. Each model keeps its own
// table set, even where the programming guide lists one shared table
// for the SDM3045X and SDM3055: the 3045X reports the 600 mV decade
// family, not the 200 mV one. Where a row disagrees with the printed
// guide, the observed response wins.

var tables = map[string]map[Family][]Entry{
	"SDM3045X": {
		VoltageDC: {
			{0.6, "600MV", "600 mV"},
			{6.0, "6V", "6 V"},
			{60.0, "60V", "60 V"},
			{600.0, "600V", "600 V"},
			{1000.0, "1000V", "1000 V"},
		},
		VoltageAC: {
			{0.6, "600MV", "600 mV"},
			{6.0, "6V", "6 V"},
			{60.0, "60V", "60 V"},
			{600.0, "600V", "600 V"},
			{750.0, "750V", "750 V"},
		},
		CurrentDC: {
			{0.0006, "600UA", "600 µA"},
			{0.006, "6MA", "6 mA"},
			{0.06, "60MA", "60 mA"},
			{0.6, "600MA", "600 mA"},
			{6.0, "6A", "6 A"},
			{10.0, "10A", "10 A"},
		},
		CurrentAC: {
			{0.06, "60MA", "60 mA"},
			{0.6, "600MA", "600 mA"},
			{6.0, "6A", "6 A"},
			{10.0, "10A", "10 A"},
		},
		Resistance: {
			{600.0, "600OHM", "600 Ω"},
			{6000.0, "6KOHM", "6 kΩ"},
			{60000.0, "60KOHM", "60 kΩ"},
			{600000.0, "600KOHM", "600 kΩ"},
			{6000000.0, "6MOHM", "6 MΩ"},
			{60000000.0, "60MOHM", "60 MΩ"},
			{100000000.0, "100MOHM", "100 MΩ"},
		},
		Capacitance: {
			{2e-9, "2NF", "2 nF"},
			{20e-9, "20NF", "20 nF"},
			{200e-9, "200NF", "200 nF"},
			{2e-6, "2UF", "2 µF"},
			{20e-6, "20UF", "20 µF"},
			{200e-6, "200UF", "200 µF"},
			{0.01, "10000UF", "10000 µF"},
		},
	},
	"SDM3055": {
		VoltageDC: {
			{0.2, "200MV", "200 mV"},
			{2.0, "2V", "2 V"},
			{20.0, "20V", "20 V"},
			{200.0, "200V", "200 V"},
			{1000.0, "1000V", "1000 V"},
		},
		VoltageAC: {
			{0.2, "200MV", "200 mV"},
			{2.0, "2V", "2 V"},
			{20.0, "20V", "20 V"},
			{200.0, "200V", "200 V"},
			{750.0, "750V", "750 V"},
		},
		CurrentDC: {
			{0.0002, "200UA", "200 µA"},
			{0.002, "2MA", "2 mA"},
			{0.02, "20MA", "20 mA"},
			{0.2, "200MA", "200 mA"},
			{2.0, "2A", "2 A"},
			{10.0, "10A", "10 A"},
		},
		CurrentAC: {
			{0.02, "20MA", "20 mA"},
			{0.2, "200MA", "200 mA"},
			{2.0, "2A", "2 A"},
			{10.0, "10A", "10 A"},
		},
		Resistance: {
			{200.0, "200OHM", "200 Ω"},
			{2000.0, "2KOHM", "2 kΩ"},
			{20000.0, "20KOHM", "20 kΩ"},
			{200000.0, "200KOHM", "200 kΩ"},
			{2000000.0, "2MOHM", "2 MΩ"},
			{10000000.0, "10MOHM", "10 MΩ"},
			{100000000.0, "100MOHM", "100 MΩ"},
		},
		Capacitance: {
			{2e-9, "2NF", "2 nF"},
			{20e-9, "20NF", "20 nF"},
			{200e-9, "200NF", "200 nF"},
			{2e-6, "2UF", "2 µF"},
			{20e-6, "20UF", "20 µF"},
			{200e-6, "200UF", "200 µF"},
			{0.01, "10000UF", "10000 µF"},
		},
	},
	"SDM3065X": {
		VoltageDC: {
			{0.2, "200MV", "200 mV"},
			{2.0, "2V", "2 V"},
			{20.0, "20V", "20 V"},
			{200.0, "200V", "200 V"},
			{1000.0, "1000V", "1000 V"},
		},
		VoltageAC: {
			{0.2, "200MV", "200 mV"},
			{2.0, "2V", "2 V"},
			{20.0, "20V", "20 V"},
			{200.0, "200V", "200 V"},
			{750.0, "750V", "750 V"},
		},
		CurrentDC: {
			{0.0002, "200UA", "200 µA"},
			{0.002, "2MA", "2 mA"},
			{0.02, "20MA", "20 mA"},
			{0.2, "200MA", "200 mA"},
			{2.0, "2A", "2 A"},
			{10.0, "10A", "10 A"},
		},
		CurrentAC: {
			{0.0002, "200UA", "200 µA"},
			{0.002, "2MA", "2 mA"},
			{0.02, "20MA", "20 mA"},
			{0.2, "200MA", "200 mA"},
			{2.0, "2A", "2 A"},
			{10.0, "10A", "10 A"},
		},
		Resistance: {
			{200.0, "200OHM", "200 Ω"},
			{2000.0, "2KOHM", "2 kΩ"},
			{20000.0, "20KOHM", "20 kΩ"},
			{200000.0, "200KOHM", "200 kΩ"},
			{1000000.0, "1MOHM", "1 MΩ"},
			{10000000.0, "10MOHM", "10 MΩ"},
			{100000000.0, "100MOHM", "100 MΩ"},
		},
		Capacitance: {
			{2e-9, "2NF", "2 nF"},
			{20e-9, "20NF", "20 nF"},
			{200e-9, "200NF", "200 nF"},
			{2e-6, "2UF", "2 µF"},
			{20e-6, "20UF", "20 µF"},
			{200e-6, "200UF", "200 µF"},
			{0.002, "2MF", "2 mF"},
			{0.02, "20MF", "20 mF"},
			{0.1, "100MF", "100 mF"},
		},
	},
}

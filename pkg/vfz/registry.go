package vfz

import "github.com/rs/zerolog/log"

// DriverName is the name the driver registers under.
const DriverName = "vfzfpga"

// Find returns the description of the single vfzfpga board. There is no
// discovery; the board is always reported.
func Find(args Kwargs) []Kwargs {
	log.Debug().Interface("args", args).Msg("find " + DriverName)

	return []Kwargs{{
		"device_id": "0",
		"label":     DriverName,
		"device":    DriverName,
	}}
}

// Make creates a Device for a description returned by Find.
func Make(args Kwargs, opts ...DeviceOption) (*Device, error) {
	log.Debug().Interface("args", args).Msg("make " + DriverName)

	return NewDevice(opts...)
}

package state

import (
	"strconv"
	"strings"
)

// CalibrationInfo describes which picture calibration features a model
// supports. Zero LUT3DSize and DVConfigType mean unsupported.
type CalibrationInfo struct {
	LUT1D             bool `json:"lut1d"`
	LUT3DSize         int  `json:"lut3dSize,omitempty"`
	CustomToneMapping bool `json:"customToneMapping"`
	DVConfigType      int  `json:"dvConfigType,omitempty"`
}

// CalibrationSupport derives calibration support from a model name such as
// "OLED55C9PLA" or "65SM9900PLA".
func CalibrationSupport(modelName string) CalibrationInfo {
	var info CalibrationInfo

	if strings.HasPrefix(modelName, "OLED") && len(modelName) > 7 {
		series := modelName[6]
		year, ok := digit(modelName[7])
		if !ok {
			return info
		}
		if year >= 8 {
			info.LUT1D = true
			if series == 'B' {
				info.LUT3DSize = 17
			} else {
				info.LUT3DSize = 33
			}
		}
		switch year {
		case 8:
			info.DVConfigType = 2018
		case 9:
			info.CustomToneMapping = true
			info.DVConfigType = 2019
		}
		return info
	}

	if len(modelName) <= 5 {
		return info
	}
	if size, err := strconv.Atoi(modelName[0:2]); err != nil || size == 0 {
		return info
	}

	// <size><type><year><series><number>, e.g. 65 S M 9 9
	modelType, modelYear := modelName[2], modelName[3]
	series, okSeries := digit(modelName[4])
	number, okNumber := digit(modelName[5])
	if modelType != 'S' || (modelYear != 'K' && modelYear != 'M') || !okSeries || series < 8 {
		return info
	}

	info.LUT1D = true
	if okNumber && series == 9 && number == 9 {
		info.LUT3DSize = 33
	} else {
		info.LUT3DSize = 17
	}
	switch modelYear {
	case 'K':
		info.DVConfigType = 2018
	case 'M':
		info.CustomToneMapping = true
		info.DVConfigType = 2019
	}
	return info
}

func digit(b byte) (int, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	return int(b - '0'), true
}

package remote

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/markus-barta/webos-remote/internal/protocol"
)

// Commands of the external picture-quality service.
const (
	calStart         = "CAL_START"
	calEnd           = "CAL_END"
	cal1DLUT         = "1D_DPG_DATA"
	cal3DLUTBT709    = "BT709_3D_LUT_DATA"
	cal3DLUTBT2020   = "BT2020_3D_LUT_DATA"
	calBrightness    = "BRIGHTNESS_UI_DATA"
	calContrast      = "CONTRAST_UI_DATA"
	calBacklight     = "BACKLIGHT_UI_DATA"
	calColor         = "COLOR_UI_DATA"
	cal1DGamma22     = "1D_2_2_EN"
	cal1DGamma045    = "1D_0_45_EN"
	calGamutBT709    = "BT709_3BY3_GAMUT_DATA"
	calGamutBT2020   = "BT2020_3BY3_GAMUT_DATA"
	calTonemapParams = "1D_TONEMAP_PARAM"
)

const (
	lut1DSize         = 1024
	lut1DMax          = 32767
	lut3DMax          = 4095
	calibrationMatrix = 9
)

// calibrationPayload is the request body of every calibration command. Data
// holds the little-endian bytes of the values, base64 encoded.
type calibrationPayload struct {
	Command   string `json:"command"`
	Data      string `json:"data"`
	DataCount int    `json:"dataCount"`
	DataOpt   int    `json:"dataOpt"`
	DataType  string `json:"dataType"`
	ProfileNo int    `json:"profileNo"`
	ProgramID int    `json:"programID"`
	PicMode   string `json:"picMode"`
}

type calibrationValue interface {
	uint16 | float32
}

func calibrationType[T calibrationValue](data []T) string {
	switch any(data).(type) {
	case []uint16:
		return "unsigned integer16"
	default:
		return "float"
	}
}

func (c *Client) calibrate(ctx context.Context, command, picMode string, data []byte, count int, dataType string) (json.RawMessage, error) {
	if picMode == "" {
		return nil, fmt.Errorf("%w: empty picture mode", ErrInvalidCalibration)
	}
	return c.Request(ctx, protocol.EndpointCalibration, calibrationPayload{
		Command:   command,
		Data:      base64.StdEncoding.EncodeToString(data),
		DataCount: count,
		DataOpt:   1,
		DataType:  dataType,
		ProfileNo: 0,
		ProgramID: 1,
		PicMode:   picMode,
	})
}

// calibrationRequest sends data for command in picMode. want is the
// required element count.
func calibrationRequest[T calibrationValue](ctx context.Context, c *Client, command, picMode string, data []T, want int) (json.RawMessage, error) {
	if len(data) != want {
		return nil, fmt.Errorf("%w: %s needs %d values, got %d", ErrInvalidCalibration, command, want, len(data))
	}
	raw, err := binary.Append(nil, binary.LittleEndian, data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", command, err)
	}
	return c.calibrate(ctx, command, picMode, raw, len(data), calibrationType(data))
}

// DefaultCalibrationData is sent by StartCalibration and EndCalibration when
// no data is given.
func DefaultCalibrationData() []float32 {
	return []float32{0, 0, 0, 0, 0, 0, 0.0044, -0.0453, 1.041}
}

// IdentityGamut is the neutral 3x3 gamut matrix in row-major order.
func IdentityGamut() []float32 {
	return []float32{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Unity1DLUT returns the neutral 1D LUT: three rows of 1024 values ramping
// from 0 to 32767, red first.
func Unity1DLUT() []uint16 {
	lut := make([]uint16, 0, 3*lut1DSize)
	for range 3 {
		for i := range lut1DSize {
			lut = append(lut, uint16(math.RoundToEven(float64(i)*lut1DMax/(lut1DSize-1))))
		}
	}
	return lut
}

// Unity3DLUT returns the neutral n×n×n 3D LUT. Entry [i][j][k] holds the
// triple (v(k), v(j), v(i)) where v spans 0 to 4095.
func Unity3DLUT(n int) []uint16 {
	if n < 2 {
		return nil
	}
	step := func(x int) uint16 {
		return uint16(min(math.RoundToEven(float64(x)*4096/float64(n-1)), lut3DMax))
	}
	lut := make([]uint16, 0, n*n*n*3)
	for i := range n {
		for j := range n {
			for k := range n {
				lut = append(lut, step(k), step(j), step(i))
			}
		}
	}
	return lut
}

// StartCalibration enters calibration mode for picMode. nil data sends
// DefaultCalibrationData.
func (c *Client) StartCalibration(ctx context.Context, picMode string, data []float32) (json.RawMessage, error) {
	if data == nil {
		data = DefaultCalibrationData()
	}
	return calibrationRequest(ctx, c, calStart, picMode, data, calibrationMatrix)
}

// EndCalibration leaves calibration mode for picMode. nil data sends
// DefaultCalibrationData.
func (c *Client) EndCalibration(ctx context.Context, picMode string, data []float32) (json.RawMessage, error) {
	if data == nil {
		data = DefaultCalibrationData()
	}
	return calibrationRequest(ctx, c, calEnd, picMode, data, calibrationMatrix)
}

// Upload1DLUT uploads a 3×1024 1D LUT. nil data uploads Unity1DLUT.
func (c *Client) Upload1DLUT(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if !c.CalibrationSupport().LUT1D {
		return nil, fmt.Errorf("%w: 1D LUT upload on model %q", ErrCalibrationUnsupported, c.State().ModelName())
	}
	if data == nil {
		data = Unity1DLUT()
	}
	return calibrationRequest(ctx, c, cal1DLUT, picMode, data, 3*lut1DSize)
}

// Upload3DLUTBT709 uploads the BT.709 3D LUT. Its size must match the model.
// nil data uploads the unity LUT.
func (c *Client) Upload3DLUTBT709(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error) {
	return c.upload3DLUT(ctx, cal3DLUTBT709, picMode, data)
}

// Upload3DLUTBT2020 uploads the BT.2020 3D LUT. Its size must match the
// model. nil data uploads the unity LUT.
func (c *Client) Upload3DLUTBT2020(ctx context.Context, picMode string, data []uint16) (json.RawMessage, error) {
	return c.upload3DLUT(ctx, cal3DLUTBT2020, picMode, data)
}

func (c *Client) upload3DLUT(ctx context.Context, command, picMode string, data []uint16) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	n := c.CalibrationSupport().LUT3DSize
	if n == 0 {
		return nil, fmt.Errorf("%w: 3D LUT upload on model %q", ErrCalibrationUnsupported, c.State().ModelName())
	}
	if data == nil {
		data = Unity3DLUT(n)
	}
	return calibrationRequest(ctx, c, command, picMode, data, n*n*n*3)
}

func (c *Client) setUIData(ctx context.Context, command, picMode string, value int) (json.RawMessage, error) {
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("%w: %s value %d outside 0-100", ErrInvalidCalibration, command, value)
	}
	return calibrationRequest(ctx, c, command, picMode, []uint16{uint16(value)}, 1)
}

// SetBrightness sets the brightness control of picMode, 0-100.
func (c *Client) SetBrightness(ctx context.Context, picMode string, value int) (json.RawMessage, error) {
	return c.setUIData(ctx, calBrightness, picMode, value)
}

// SetContrast sets the contrast control of picMode, 0-100.
func (c *Client) SetContrast(ctx context.Context, picMode string, value int) (json.RawMessage, error) {
	return c.setUIData(ctx, calContrast, picMode, value)
}

// SetOLEDLight sets the OLED light (backlight) control of picMode, 0-100.
func (c *Client) SetOLEDLight(ctx context.Context, picMode string, value int) (json.RawMessage, error) {
	return c.setUIData(ctx, calBacklight, picMode, value)
}

// SetColor sets the color control of picMode, 0-100.
func (c *Client) SetColor(ctx context.Context, picMode string, value int) (json.RawMessage, error) {
	return c.setUIData(ctx, calColor, picMode, value)
}

// Set1DGamma22 writes the 1D 2.2 gamma enable flag of picMode.
func (c *Client) Set1DGamma22(ctx context.Context, picMode string, value uint16) (json.RawMessage, error) {
	return calibrationRequest(ctx, c, cal1DGamma22, picMode, []uint16{value}, 1)
}

// Set1DGamma045 writes the 1D 0.45 gamma enable flag of picMode.
func (c *Client) Set1DGamma045(ctx context.Context, picMode string, value uint16) (json.RawMessage, error) {
	return calibrationRequest(ctx, c, cal1DGamma045, picMode, []uint16{value}, 1)
}

// SetGamutBT709 uploads the BT.709 3x3 gamut matrix, row-major. nil sends
// IdentityGamut.
func (c *Client) SetGamutBT709(ctx context.Context, picMode string, matrix []float32) (json.RawMessage, error) {
	if matrix == nil {
		matrix = IdentityGamut()
	}
	return calibrationRequest(ctx, c, calGamutBT709, picMode, matrix, calibrationMatrix)
}

// SetGamutBT2020 uploads the BT.2020 3x3 gamut matrix, row-major. nil sends
// IdentityGamut.
func (c *Client) SetGamutBT2020(ctx context.Context, picMode string, matrix []float32) (json.RawMessage, error) {
	if matrix == nil {
		matrix = IdentityGamut()
	}
	return calibrationRequest(ctx, c, calGamutBT2020, picMode, matrix, calibrationMatrix)
}

// TonemapParams configures the HDR tone mapping curve: the panel peak
// luminance and three mastering peaks with their roll-off points.
type TonemapParams struct {
	Luminance      uint16
	MasteringPeak1 uint16
	RolloffPoint1  uint16
	MasteringPeak2 uint16
	RolloffPoint2  uint16
	MasteringPeak3 uint16
	RolloffPoint3  uint16
}

// DefaultTonemapParams returns the factory tone mapping curve.
func DefaultTonemapParams() TonemapParams {
	return TonemapParams{
		Luminance:      700,
		MasteringPeak1: 1000,
		RolloffPoint1:  70,
		MasteringPeak2: 4000,
		RolloffPoint2:  60,
		MasteringPeak3: 10000,
		RolloffPoint3:  50,
	}
}

// SetTonemapParams uploads the tone mapping curve of picMode.
func (c *Client) SetTonemapParams(ctx context.Context, picMode string, p TonemapParams) (json.RawMessage, error) {
	data := []uint16{
		p.Luminance,
		p.MasteringPeak1, p.RolloffPoint1,
		p.MasteringPeak2, p.RolloffPoint2,
		p.MasteringPeak3, p.RolloffPoint3,
	}
	return calibrationRequest(ctx, c, calTonemapParams, picMode, data, len(data))
}

type resetStep struct {
	name string
	run  func() (json.RawMessage, error)
}

// DDCReset restores neutral calibration for picMode: gamma flags cleared,
// identity gamuts and unity 3D LUTs, plus the unity 1D LUT when reset1DLUT
// is set. It stops at the first failing step.
func (c *Client) DDCReset(ctx context.Context, picMode string, reset1DLUT bool) error {
	steps := []resetStep{
		{"1d gamma 2.2", func() (json.RawMessage, error) { return c.Set1DGamma22(ctx, picMode, 0) }},
		{"1d gamma 0.45", func() (json.RawMessage, error) { return c.Set1DGamma045(ctx, picMode, 0) }},
		{"bt709 gamut", func() (json.RawMessage, error) { return c.SetGamutBT709(ctx, picMode, nil) }},
		{"bt2020 gamut", func() (json.RawMessage, error) { return c.SetGamutBT2020(ctx, picMode, nil) }},
		{"bt709 3d lut", func() (json.RawMessage, error) { return c.Upload3DLUTBT709(ctx, picMode, nil) }},
		{"bt2020 3d lut", func() (json.RawMessage, error) { return c.Upload3DLUTBT2020(ctx, picMode, nil) }},
	}
	if reset1DLUT {
		steps = append(steps, resetStep{"1d lut", func() (json.RawMessage, error) { return c.Upload1DLUT(ctx, picMode, nil) }})
	}

	for _, step := range steps {
		if _, err := step.run(); err != nil {
			return fmt.Errorf("ddc reset %s: %w", step.name, err)
		}
	}
	c.log.Info().Str("picMode", picMode).Bool("reset1DLUT", reset1DLUT).Msg("calibration reset")
	return nil
}

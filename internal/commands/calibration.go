package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/markus-barta/webos-remote/internal/remote"
)

// floatList parses calibration values. No arguments yields nil, which selects
// the operation's default data.
func floatList(args []string) ([]float32, error) {
	if len(args) == 0 {
		return nil, nil
	}
	values := make([]float32, len(args))
	for i, arg := range args {
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d must be a number, got %q", ErrUsage, i+1, arg)
		}
		values[i] = float32(v)
	}
	return values, nil
}

func uint16Arg(args []string, i int, name string) (uint16, error) {
	v, err := strconv.ParseUint(args[i], 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer in 0-65535, got %q", ErrUsage, name, args[i])
	}
	return uint16(v), nil
}

func unityUpload(help string, fn func(Remote, context.Context, string, []uint16) (any, error)) Command {
	return Command{
		Usage:   "<pic-mode>",
		Help:    help,
		MinArgs: 1,
		MaxArgs: 1,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			return fn(r, ctx, args[0], nil)
		},
	}
}

func matrixCommand(help string, fn func(Remote, context.Context, string, []float32) (any, error)) Command {
	return Command{
		Usage:   "<pic-mode> [v1 ... v9]",
		Help:    help,
		MinArgs: 1,
		MaxArgs: 10,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			values, err := floatList(args[1:])
			if err != nil {
				return nil, err
			}
			return fn(r, ctx, args[0], values)
		},
	}
}

func uiCommand(help string, fn func(Remote, context.Context, string, int) (any, error)) Command {
	return Command{
		Usage:   "<pic-mode> <0-100>",
		Help:    help,
		MinArgs: 2,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			value, err := intArg(args, 1, "value")
			if err != nil {
				return nil, err
			}
			return fn(r, ctx, args[0], value)
		},
	}
}

func flagCommand(help string, fn func(Remote, context.Context, string, uint16) (any, error)) Command {
	return Command{
		Usage:   "<pic-mode> [value]",
		Help:    help,
		MinArgs: 1,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			var value uint16
			if len(args) > 1 {
				v, err := uint16Arg(args, 1, "value")
				if err != nil {
					return nil, err
				}
				value = v
			}
			return fn(r, ctx, args[0], value)
		},
	}
}

// addCalibration registers the picture calibration commands. LUT uploads
// send the unity tables; loading LUT files is left to callers of the client.
func addCalibration(named func(string, Command)) {
	named("start_calibration", matrixCommand("enter calibration mode", func(r Remote, ctx context.Context, mode string, data []float32) (any, error) {
		return r.StartCalibration(ctx, mode, data)
	}))
	named("end_calibration", matrixCommand("leave calibration mode", func(r Remote, ctx context.Context, mode string, data []float32) (any, error) {
		return r.EndCalibration(ctx, mode, data)
	}))

	named("upload_1d_lut", unityUpload("upload the unity 1D LUT", func(r Remote, ctx context.Context, mode string, data []uint16) (any, error) {
		return r.Upload1DLUT(ctx, mode, data)
	}))
	named("upload_3d_lut_bt709", unityUpload("upload the unity BT.709 3D LUT", func(r Remote, ctx context.Context, mode string, data []uint16) (any, error) {
		return r.Upload3DLUTBT709(ctx, mode, data)
	}))
	named("upload_3d_lut_bt2020", unityUpload("upload the unity BT.2020 3D LUT", func(r Remote, ctx context.Context, mode string, data []uint16) (any, error) {
		return r.Upload3DLUTBT2020(ctx, mode, data)
	}))

	named("set_brightness", uiCommand("set calibration brightness", func(r Remote, ctx context.Context, mode string, v int) (any, error) {
		return r.SetBrightness(ctx, mode, v)
	}))
	named("set_contrast", uiCommand("set calibration contrast", func(r Remote, ctx context.Context, mode string, v int) (any, error) {
		return r.SetContrast(ctx, mode, v)
	}))
	named("set_oled_light", uiCommand("set calibration OLED light", func(r Remote, ctx context.Context, mode string, v int) (any, error) {
		return r.SetOLEDLight(ctx, mode, v)
	}))
	named("set_color", uiCommand("set calibration color", func(r Remote, ctx context.Context, mode string, v int) (any, error) {
		return r.SetColor(ctx, mode, v)
	}))

	named("set_1d_2_2_en", flagCommand("set the 1D 2.2 gamma flag", func(r Remote, ctx context.Context, mode string, v uint16) (any, error) {
		return r.Set1DGamma22(ctx, mode, v)
	}))
	named("set_1d_0_45_en", flagCommand("set the 1D 0.45 gamma flag", func(r Remote, ctx context.Context, mode string, v uint16) (any, error) {
		return r.Set1DGamma045(ctx, mode, v)
	}))

	named("set_bt709_3by3_gamut_data", matrixCommand("set the BT.709 gamut matrix", func(r Remote, ctx context.Context, mode string, m []float32) (any, error) {
		return r.SetGamutBT709(ctx, mode, m)
	}))
	named("set_bt2020_3by3_gamut_data", matrixCommand("set the BT.2020 gamut matrix", func(r Remote, ctx context.Context, mode string, m []float32) (any, error) {
		return r.SetGamutBT2020(ctx, mode, m)
	}))

	named("set_tonemap_params", Command{
		Usage:   "<pic-mode> [luminance mp1 ro1 mp2 ro2 mp3 ro3]",
		Help:    "set the HDR tone mapping curve",
		MinArgs: 1,
		MaxArgs: 8,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			p := remote.DefaultTonemapParams()
			fields := []*uint16{
				&p.Luminance,
				&p.MasteringPeak1, &p.RolloffPoint1,
				&p.MasteringPeak2, &p.RolloffPoint2,
				&p.MasteringPeak3, &p.RolloffPoint3,
			}
			for i := 1; i < len(args); i++ {
				v, err := uint16Arg(args, i, "tone mapping value")
				if err != nil {
					return nil, err
				}
				*fields[i-1] = v
			}
			return r.SetTonemapParams(ctx, args[0], p)
		},
	})

	named("ddc_reset", Command{
		Usage:   "<pic-mode> [reset-1d-lut]",
		Help:    "restore neutral calibration",
		MinArgs: 1,
		MaxArgs: 2,
		Run: func(ctx context.Context, r Remote, args []string) (any, error) {
			reset1D := true
			if len(args) > 1 {
				v, err := boolArg(args, 1, "reset-1d-lut")
				if err != nil {
					return nil, err
				}
				reset1D = v
			}
			return inputResult(r.DDCReset(ctx, args[0], reset1D))
		},
	})
}

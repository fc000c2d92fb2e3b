package modules

import (
	"os"
	"runtime"

	"github.com/joeycumines/nativebridge/internal/module"
	"golang.org/x/term"
)

// DeviceInfoName is the registered name of the device info module.
const DeviceInfoName = "deviceinfo"

// TerminalSizer reports the size of the controlling terminal.
type TerminalSizer func() (width, height int, err error)

func stdoutSize() (int, int, error) {
	return term.GetSize(int(os.Stdout.Fd()))
}

// DeviceInfo describes the eagerly built device info module, whose get()
// returns os, arch, hostname, bridgeId and the terminal size. A nil sizer
// measures stdout.
func DeviceInfo(sizer TerminalSizer) module.Descriptor {
	return module.Descriptor{
		Name:      DeviceInfoName,
		EagerInit: true,
		Factory: func(ctx *module.Context) (any, error) {
			if sizer == nil {
				sizer = stdoutSize
			}
			hostname, err := os.Hostname()
			if err != nil {
				ctx.Logger.Warn("hostname unavailable", "error", err)
			}
			return &deviceInfo{
				sizer: sizer,
				static: map[string]any{
					"os":       runtime.GOOS,
					"arch":     runtime.GOARCH,
					"hostname": hostname,
					"bridgeId": ctx.BridgeID,
				},
			}, nil
		},
	}
}

type deviceInfo struct {
	sizer  TerminalSizer
	static map[string]any
}

func (d *deviceInfo) Methods() map[string]module.Method {
	return map[string]module.Method{"get": d.get}
}

// get re-measures the terminal on every call.
func (d *deviceInfo) get([]any) (any, error) {
	info := make(map[string]any, len(d.static)+3)
	for k, v := range d.static {
		info[k] = v
	}
	w, h, err := d.sizer()
	info["terminal"] = err == nil
	info["width"] = w
	info["height"] = h
	return info, nil
}

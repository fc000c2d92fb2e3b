// Package modules holds leaf modules a bridge can register: clipboard access
// and device information.
package modules

import "github.com/joeycumines/nativebridge/internal/module"

// All returns the descriptors of every module in this package.
func All() []module.Descriptor {
	return []module.Descriptor{Clipboard(nil), DeviceInfo(nil)}
}

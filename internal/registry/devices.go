// Package registry links every built-in device kind into the binary.
package registry

import (
	_ "github.com/Alia5/vxhci/device/mouse" // Register mouse device
)

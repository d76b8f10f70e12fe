package vision

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
)

// ErrAcceleratorMissing is returned when a GPU is required but none is
// visible to the process.
var ErrAcceleratorMissing = errors.New("no CUDA accelerator available")

// Accelerator describes the GPUs visible to the process.
type Accelerator struct {
	Devices []string `json:"devices"`
}

// Available reports whether at least one device was found.
func (a Accelerator) Available() bool { return len(a.Devices) > 0 }

// commandOutput is swapped in tests.
var commandOutput = func(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// DetectAccelerator lists CUDA devices through nvidia-smi. A missing tool
// means no devices.
func DetectAccelerator(ctx context.Context) Accelerator {
	out, err := commandOutput(ctx, "nvidia-smi", "-L")
	if err != nil {
		diagf("nvidia-smi: %v", err)
		return Accelerator{}
	}
	var acc Accelerator
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); strings.HasPrefix(line, "GPU ") {
			acc.Devices = append(acc.Devices, line)
		}
	}
	return acc
}

// RequireAccelerator returns ErrAcceleratorMissing when require is set and
// acc has no devices.
func RequireAccelerator(acc Accelerator, require bool) error {
	if require && !acc.Available() {
		return ErrAcceleratorMissing
	}
	return nil
}

// ConfigureDevices pins CUDA device enumeration for the whole process. It
// must run once at start-up, before any model is loaded.
func ConfigureDevices(visible string) error {
	if err := os.Setenv("CUDA_DEVICE_ORDER", "PCI_BUS_ID"); err != nil {
		return err
	}
	if visible == "" {
		return nil
	}
	return os.Setenv("CUDA_VISIBLE_DEVICES", visible)
}

package supervisor

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/host"
)

// HostDescription names the machine skipper runs on, for the start-up
// notification.
func HostDescription(ctx context.Context) string {
	info, err := host.InfoWithContext(ctx)
	if err != nil || info == nil {
		return "unknown host"
	}
	return fmt.Sprintf("%s (%s %s %s)", info.Hostname, info.Platform, info.PlatformVersion, info.KernelArch)
}

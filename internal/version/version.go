// Package version provides build-time version information.
package version

import (
	"fmt"
	"runtime"

	"github.com/klauspost/cpuid"
	"github.com/pbnjay/memory"
	"gocv.io/x/gocv"
)

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version
	Version = "0.1.0"

	// BuildTime is the UTC time when the binary was built
	BuildTime = "unknown"

	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info describes the binary and the host it runs on.
type Info struct {
	Version       string `json:"version"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	Platform      string `json:"platform"`
	GoCV          string `json:"gocv"`
	OpenCV        string `json:"opencv"`
	CPU           string `json:"cpu"`
	PhysicalCores int    `json:"physical_cores"`
	LogicalCores  int    `json:"logical_cores"`
	AVX2          bool   `json:"avx2"`
	MemoryMiB     uint64 `json:"memory_mib"`
}

// Get collects the build and host information.
func Get() Info {
	return Info{
		Version:       Version,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
		GoCV:          gocv.Version(),
		OpenCV:        gocv.OpenCVVersion(),
		CPU:           cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.AVX2(),
		MemoryMiB:     memory.TotalMemory() / 1024 / 1024,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("imreg %s (commit %s, built %s)\n%s %s, gocv %s, OpenCV %s\n%s, %d physical / %d logical cores, AVX2 %v, %d MiB memory",
		i.Version, i.GitCommit, i.BuildTime,
		i.GoVersion, i.Platform, i.GoCV, i.OpenCV,
		i.CPU, i.PhysicalCores, i.LogicalCores, i.AVX2, i.MemoryMiB)
}
